// Package translator maps MySQL column types and defaults onto PostgreSQL.
package translator

import (
	"regexp"
	"strings"
)

// Fallback is the destination type for anything unrecognized
const Fallback = "TEXT"

var (
	lengthArg     = regexp.MustCompile(`^\((\d+)\)`)
	precisionArg  = regexp.MustCompile(`^\((\d+)\s*,\s*(\d+)\)`)
	numericLitRex = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
)

// Translate maps a raw MySQL column type such as "varchar(45)" or
// "int(10) unsigned" to a PostgreSQL type. It never fails; unknown types
// become TEXT.
func Translate(sourceType string, autoIncrement bool) string {
	pgType, _ := TranslateType(sourceType, autoIncrement)
	return pgType
}

// TranslateType is Translate that also reports whether the type was
// recognized. An unrecognized type is translated lossily to TEXT.
func TranslateType(sourceType string, autoIncrement bool) (string, bool) {
	base, args, unsigned := splitType(sourceType)

	if autoIncrement {
		switch base {
		case "bigint":
			return "BIGSERIAL", true
		case "int", "integer":
			if unsigned {
				return "BIGSERIAL", true
			}
			return "SERIAL", true
		case "tinyint", "smallint":
			return "SMALLSERIAL", true
		case "mediumint":
			return "SERIAL", true
		}
	}

	switch base {
	// Integer types
	case "tinyint":
		if args == "(1)" {
			return "BOOLEAN", true
		}
		return "SMALLINT", true
	case "bool", "boolean":
		return "BOOLEAN", true
	case "smallint":
		return "SMALLINT", true
	case "mediumint":
		return "INTEGER", true
	case "int", "integer":
		if unsigned {
			return "BIGINT", true
		}
		return "INTEGER", true
	case "bigint":
		return "BIGINT", true

	// Floating point and fixed point
	case "float":
		return "REAL", true
	case "double", "real":
		return "DOUBLE PRECISION", true
	case "decimal", "numeric", "dec", "fixed":
		if m := precisionArg.FindStringSubmatch(args); m != nil {
			return "NUMERIC(" + m[1] + "," + m[2] + ")", true
		}
		if m := lengthArg.FindStringSubmatch(args); m != nil {
			return "NUMERIC(" + m[1] + ")", true
		}
		return "NUMERIC", true

	// Strings
	case "char":
		return withLength("CHAR", args), true
	case "varchar":
		return withLength("VARCHAR", args), true
	case "tinytext", "text", "mediumtext", "longtext":
		return "TEXT", true
	case "enum", "set":
		return "VARCHAR(255)", true

	// Binary, including bit fields and WKB encoded spatial values
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob", "bit",
		"geometry", "point", "linestring", "polygon", "multipoint", "multilinestring",
		"multipolygon", "geometrycollection":
		return "BYTEA", true

	// Date and time
	case "datetime", "timestamp":
		return "TIMESTAMP", true
	case "date":
		return "DATE", true
	case "time":
		return "TIME", true
	case "year":
		return "SMALLINT", true

	case "json":
		return "JSON", true
	}

	return Fallback, false
}

// splitType lowercases a raw type and splits it into the base name, the
// parenthesised arguments and the unsigned flag
func splitType(raw string) (base, args string, unsigned bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	unsigned = strings.Contains(t, "unsigned")

	end := strings.IndexAny(t, "( ")
	if end < 0 {
		return t, "", unsigned
	}
	base = t[:end]
	rest := strings.TrimLeft(t[end:], " ")
	if strings.HasPrefix(rest, "(") {
		if closing := strings.Index(rest, ")"); closing > 0 {
			args = rest[:closing+1]
		}
	}
	return base, args, unsigned
}

func withLength(pgType, args string) string {
	if m := lengthArg.FindStringSubmatch(args); m != nil {
		return pgType + "(" + m[1] + ")"
	}
	return pgType
}

var timestampDefaults = map[string]bool{
	"current_timestamp": true,
	"now":               true,
	"localtime":         true,
	"localtimestamp":    true,
}

// TranslateDefault renders the DEFAULT clause for a column whose PostgreSQL
// type is pgType. It returns "" when the column has no default; ok is false
// when a default was present but cannot be expressed and was dropped.
func TranslateDefault(def *string, pgType string) (clause string, ok bool) {
	if def == nil || *def == "" {
		return "", true
	}
	value := *def
	lower := strings.ToLower(strings.TrimSpace(value))

	// current_timestamp, current_timestamp() and current_timestamp(6) alike
	fn := lower
	if i := strings.Index(fn, "("); i > 0 {
		fn = fn[:i]
	}
	if timestampDefaults[fn] {
		return "DEFAULT CURRENT_TIMESTAMP", true
	}
	if fn == "curdate" || fn == "current_date" {
		return "DEFAULT CURRENT_DATE", true
	}
	// MySQL zero dates are out of range for PostgreSQL
	if strings.HasPrefix(lower, "0000-00-00") {
		return "", false
	}

	if pgType == "BOOLEAN" {
		switch lower {
		case "1", "true", "t":
			return "DEFAULT TRUE", true
		case "0", "false", "f":
			return "DEFAULT FALSE", true
		}
		return "", false
	}

	if !isTextType(pgType) && numericLitRex.MatchString(strings.TrimSpace(value)) {
		return "DEFAULT " + strings.TrimSpace(value), true
	}

	return "DEFAULT '" + strings.ReplaceAll(value, "'", "''") + "'", true
}

func isTextType(pgType string) bool {
	return strings.HasPrefix(pgType, "CHAR") || strings.HasPrefix(pgType, "VARCHAR") || pgType == "TEXT"
}
