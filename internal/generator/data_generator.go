// Package generator produces plausible fake values for introspected columns.
// The seed command uses it to fill source tables before a trial migration.
package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

var (
	lengthRex   = regexp.MustCompile(`\((\d+)\)`)
	scaleRex    = regexp.MustCompile(`\(\d+\s*,\s*(\d+)\)`)
	listRex     = regexp.MustCompile(`^(?i)(?:enum|set)\((.+)\)`)
	listItemRex = regexp.MustCompile(`'((?:[^']|'')*)'`)
)

// DataGenerator generates fake data based on column types and names
type DataGenerator struct {
	Faker  faker.Faker
	Rand   *rand.Rand
	Logger logrus.FieldLogger
}

// NewDataGenerator creates a generator. The same seed yields the same values.
func NewDataGenerator(seed int64, logger logrus.FieldLogger) *DataGenerator {
	return &DataGenerator{
		Faker:  faker.NewWithSeed(rand.NewSource(seed)),
		Rand:   rand.New(rand.NewSource(seed)),
		Logger: logger,
	}
}

// GenerateRow returns one value per column, in column order
func (dg *DataGenerator) GenerateRow(columns []models.Column) []interface{} {
	values := make([]interface{}, len(columns))
	for i, col := range columns {
		values[i] = dg.GenerateData(col)
	}
	return values
}

// GenerateData generates a value for a column. Name hints win over the type
// for text columns; the result never exceeds the declared length.
func (dg *DataGenerator) GenerateData(column models.Column) interface{} {
	dataType := strings.ToLower(column.DataType)
	if isText(dataType) {
		if v, ok := dg.byName(column); ok {
			return truncate(v, columnLength(column))
		}
		return dg.generateString(column)
	}

	switch dataType {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return dg.generateInteger(column)
	case "float", "double", "decimal", "numeric", "real", "double precision":
		return dg.generateFloat(column)
	case "boolean", "bool":
		return dg.Rand.Intn(2) == 1
	case "date":
		return dg.generateDate()
	case "time", "time without time zone":
		return dg.generateTime()
	case "datetime", "timestamp", "timestamp without time zone", "timestamp with time zone":
		return dg.generateDateTime()
	case "year":
		return 1970 + dg.Rand.Intn(time.Now().Year()-1970+1)
	case "enum":
		values := listValues(column.ColumnType)
		if len(values) == 0 {
			return nil
		}
		return values[dg.Rand.Intn(len(values))]
	case "set":
		return dg.generateSet(column)
	case "bit":
		return dg.generateBit(column)
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return dg.generateBinary(column)
	case "json", "jsonb":
		return dg.generateJSON(column)
	case "uuid":
		return dg.Faker.UUID().V4()
	}

	dg.Logger.Warnf("No generator for type %s of column %s, using NULL", dataType, column.Name)
	return nil
}

func isText(dataType string) bool {
	switch dataType {
	case "varchar", "char", "text", "tinytext", "mediumtext", "longtext",
		"character varying", "character":
		return true
	}
	return false
}

// byName recognises common column names
func (dg *DataGenerator) byName(column models.Column) (string, bool) {
	name := strings.ToLower(column.Name)
	switch {
	case strings.Contains(name, "email"):
		return dg.Faker.Internet().Email(), true
	case strings.Contains(name, "first") && strings.Contains(name, "name"):
		return dg.Faker.Person().FirstName(), true
	case strings.Contains(name, "last") && strings.Contains(name, "name"):
		return dg.Faker.Person().LastName(), true
	case strings.Contains(name, "user") && strings.Contains(name, "name"):
		return dg.Faker.Internet().User(), true
	case strings.Contains(name, "company"):
		return dg.Faker.Company().Name(), true
	case strings.Contains(name, "name") && !strings.Contains(name, "file"):
		return dg.Faker.Person().Name(), true
	case strings.Contains(name, "phone"):
		return dg.Faker.Phone().Number(), true
	case strings.Contains(name, "address"):
		return dg.Faker.Address().Address(), true
	case strings.Contains(name, "city"):
		return dg.Faker.Address().City(), true
	case strings.Contains(name, "country"):
		return dg.Faker.Address().Country(), true
	case strings.Contains(name, "zip") || strings.Contains(name, "postal"):
		return dg.Faker.Address().PostCode(), true
	case strings.Contains(name, "description") || strings.Contains(name, "summary"):
		return dg.Faker.Lorem().Paragraph(2), true
	case strings.Contains(name, "title"):
		return dg.Faker.Lorem().Sentence(4), true
	case strings.Contains(name, "url") || strings.Contains(name, "website"):
		return dg.Faker.Internet().URL(), true
	case name == "ip" || strings.HasSuffix(name, "_ip"):
		return dg.Faker.Internet().Ipv4(), true
	case strings.Contains(name, "color"):
		return dg.Faker.Color().Hex(), true
	case strings.Contains(name, "uuid"):
		return dg.Faker.UUID().V4(), true
	}
	return "", false
}

// columnLength is the declared character length, 0 when unknown
func columnLength(column models.Column) int {
	m := lengthRex.FindStringSubmatch(column.ColumnType)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func truncate(s string, n int) string {
	if n > 0 && len([]rune(s)) > n {
		return string([]rune(s)[:n])
	}
	return s
}

func (dg *DataGenerator) generateString(column models.Column) string {
	maxLength := columnLength(column)
	if maxLength == 0 || maxLength > 100 {
		maxLength = 100
	}
	length := dg.Rand.Intn(maxLength) + 1

	var s string
	switch {
	case length <= 5:
		s = dg.Faker.RandomStringWithLength(length)
	case length <= 10:
		s = dg.Faker.Lorem().Word()
	case length <= 50:
		s = dg.Faker.Lorem().Sentence(length / 10)
	default:
		s = dg.Faker.Lorem().Paragraph(length / 30)
	}
	return truncate(s, maxLength)
}

// generateInteger stays inside the signed range of the column so the value
// fits both engines
func (dg *DataGenerator) generateInteger(column models.Column) interface{} {
	if column.IsAutoIncrement {
		return nil
	}
	columnType := strings.ToLower(column.ColumnType)
	if strings.HasPrefix(columnType, "tinyint(1)") {
		return int64(dg.Rand.Intn(2))
	}

	switch strings.ToLower(column.DataType) {
	case "tinyint":
		return int64(dg.Rand.Intn(128))
	case "smallint":
		return int64(dg.Rand.Intn(32768))
	case "mediumint":
		return int64(dg.Rand.Intn(8388608))
	case "bigint":
		return dg.Rand.Int63()
	}
	return int64(dg.Rand.Int31())
}

func (dg *DataGenerator) generateFloat(column models.Column) float64 {
	value := dg.Rand.Float64() * 1000
	if m := scaleRex.FindStringSubmatch(column.ColumnType); m != nil {
		scale, _ := strconv.Atoi(m[1])
		multiplier := 1.0
		for i := 0; i < scale; i++ {
			multiplier *= 10
		}
		value = float64(int64(value*multiplier)) / multiplier
	}
	return value
}

func (dg *DataGenerator) generateDate() string {
	return time.Now().AddDate(0, 0, -dg.Rand.Intn(365*5)).Format("2006-01-02")
}

func (dg *DataGenerator) generateTime() string {
	return fmt.Sprintf("%02d:%02d:%02d", dg.Rand.Intn(24), dg.Rand.Intn(60), dg.Rand.Intn(60))
}

func (dg *DataGenerator) generateDateTime() string {
	offset := time.Duration(dg.Rand.Int63n(int64(5 * 365 * 24 * time.Hour)))
	return time.Now().Add(-offset).UTC().Format("2006-01-02 15:04:05")
}

// listValues extracts the members of an enum(...) or set(...) column type
func listValues(columnType string) []string {
	m := listRex.FindStringSubmatch(columnType)
	if m == nil {
		return nil
	}
	var values []string
	for _, item := range listItemRex.FindAllStringSubmatch(m[1], -1) {
		values = append(values, strings.ReplaceAll(item[1], "''", "'"))
	}
	return values
}

func (dg *DataGenerator) generateSet(column models.Column) interface{} {
	values := listValues(column.ColumnType)
	if len(values) == 0 {
		return nil
	}
	n := dg.Rand.Intn(len(values)) + 1
	picked := make([]string, 0, n)
	for _, idx := range dg.Rand.Perm(len(values))[:n] {
		picked = append(picked, values[idx])
	}
	return strings.Join(picked, ",")
}

func (dg *DataGenerator) generateBit(column models.Column) interface{} {
	length := columnLength(column)
	if length <= 1 {
		return int64(dg.Rand.Intn(2))
	}
	data := make([]byte, (length+7)/8)
	dg.Rand.Read(data)
	return data
}

func (dg *DataGenerator) generateBinary(column models.Column) []byte {
	length := columnLength(column)
	if length == 0 || length > 64 {
		length = 16
	}
	data := make([]byte, length)
	dg.Rand.Read(data)
	return data
}

func (dg *DataGenerator) generateJSON(column models.Column) string {
	name := strings.ToLower(column.Name)

	var data interface{}
	switch {
	case strings.Contains(name, "address"):
		data = map[string]interface{}{
			"street":  dg.Faker.Address().StreetAddress(),
			"city":    dg.Faker.Address().City(),
			"zipCode": dg.Faker.Address().PostCode(),
			"country": dg.Faker.Address().Country(),
		}
	case strings.Contains(name, "tags"):
		data = []string{dg.Faker.Lorem().Word(), dg.Faker.Lorem().Word()}
	default:
		data = map[string]interface{}{
			"id":      dg.Rand.Intn(1000),
			"name":    dg.Faker.Lorem().Word(),
			"enabled": dg.Rand.Intn(2) == 1,
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		dg.Logger.Errorf("Error generating JSON: %v", err)
		return "{}"
	}
	return string(out)
}
