package transfer

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/internal/progress"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newMockConnector(t *testing.T, engine models.Engine, database string) (*connector.DatabaseConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	cfg := models.ConnectionConfig{Engine: engine, Host: "localhost", User: "root", Database: database}
	return connector.NewFromDB(db, cfg, quietLogger()), mock
}

var usersColumns = []models.Column{
	{Name: "id", DataType: "int", ColumnType: "int(11)", IsAutoIncrement: true},
	{Name: "name", DataType: "varchar", ColumnType: "varchar(45)"},
}

const (
	mysqlUsersSelect = "SELECT `id`, `name` FROM `users` LIMIT ? OFFSET ?"
	mysqlUsersUpsert = "INSERT INTO `users` (`id`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)"
)

func expectMySQLDestination(mock sqlmock.Sqlmock, table string) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "column_type", "is_nullable", "column_default", "column_key", "extra"}).
			AddRow("id", "int", "int(11)", "NO", nil, "PRI", "auto_increment").
			AddRow("name", "varchar", "varchar(45)", "YES", nil, "", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.statistics")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "column_name"}).AddRow("PRIMARY", "id"))
}

func expectCount(mock sqlmock.Sqlmock, query string, n int64) {
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(n))
}

// fakeUsers returns n rows of (id, name) starting at id first
func fakeUsers(f faker.Faker, first, n int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name"})
	for i := 0; i < n; i++ {
		rows.AddRow(int64(first+i), f.Person().Name())
	}
	return rows
}

func mysqlRequest(src, dst *connector.DatabaseConnector, batchSize int) Request {
	return Request{
		Source:             src,
		Destination:        dst,
		SourceDialect:      dialect.MySQL{},
		DestinationDialect: dialect.MySQL{},
		SourceTable:        "users",
		DestinationTable:   "users",
		SourceColumns:      usersColumns,
		BatchSize:          batchSize,
	}
}

func expectCommittedBatch(mock sqlmock.Sqlmock, query string, n int) {
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(query))
	for i := 0; i < n; i++ {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestTransferBatchAccounting(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")
	f := faker.New()

	expectMySQLDestination(dstMock, "users")
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 2500)

	for i, size := range []int{1000, 1000, 500} {
		offset := int64(i * 1000)
		srcMock.ExpectQuery(regexp.QuoteMeta(mysqlUsersSelect)).
			WithArgs(1000, offset).
			WillReturnRows(fakeUsers(f, int(offset)+1, size))
		expectCommittedBatch(dstMock, mysqlUsersUpsert, size)
	}

	recorder := &progress.Recorder{}
	engine := NewEngine(quietLogger(), recorder)
	result := engine.Transfer(context.Background(), mysqlRequest(src, dst, 1000))

	require.True(t, result.OK, result.Message)
	assert.Equal(t, int64(2500), result.RowsTransferred)
	assert.Equal(t, 3, result.Batches)

	require.Len(t, recorder.Batches, 3)
	for i, want := range []int{1000, 1000, 500} {
		assert.Equal(t, want, recorder.Batches[i].Rows)
		assert.True(t, recorder.Batches[i].Committed)
		assert.Equal(t, int64(2500), recorder.Batches[i].Total)
	}

	assert.NoError(t, srcMock.ExpectationsWereMet())
	assert.NoError(t, dstMock.ExpectationsWereMet())
}

func TestTransferEmptySourceOpensNoTransaction(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")

	dstMock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 0)

	result := NewEngine(quietLogger(), nil).Transfer(context.Background(), mysqlRequest(src, dst, 1000))

	assert.True(t, result.OK, result.Message)
	assert.Equal(t, int64(0), result.RowsTransferred)
	assert.Equal(t, 0, result.Batches)
	// any Begin would have been an unexpected call
	assert.NoError(t, dstMock.ExpectationsWereMet())
	assert.NoError(t, srcMock.ExpectationsWereMet())
}

func TestTransferDestinationNotFound(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")

	dstMock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	result := NewEngine(quietLogger(), nil).Transfer(context.Background(), mysqlRequest(src, dst, 1000))

	assert.False(t, result.OK)
	assert.Equal(t, models.DestinationNotFound, result.ErrorKind)
	assert.Equal(t, models.DestinationNotFound, migerr.KindOf(result.Err, models.NoError))
	assert.NoError(t, dstMock.ExpectationsWereMet())
	// the source is never read
	assert.NoError(t, srcMock.ExpectationsWereMet())
}

func TestTransferRollbackKeepsCommittedCount(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")
	f := faker.New()

	expectMySQLDestination(dstMock, "users")
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 6)

	srcMock.ExpectQuery(regexp.QuoteMeta(mysqlUsersSelect)).
		WithArgs(2, int64(0)).
		WillReturnRows(fakeUsers(f, 1, 2))
	expectCommittedBatch(dstMock, mysqlUsersUpsert, 2)

	srcMock.ExpectQuery(regexp.QuoteMeta(mysqlUsersSelect)).
		WithArgs(2, int64(2)).
		WillReturnRows(fakeUsers(f, 3, 2))
	dstMock.ExpectBegin()
	prep := dstMock.ExpectPrepare(regexp.QuoteMeta(mysqlUsersUpsert))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("Data too long for column 'name'"))
	dstMock.ExpectRollback()

	recorder := &progress.Recorder{}
	result := NewEngine(quietLogger(), recorder).Transfer(context.Background(), mysqlRequest(src, dst, 2))

	assert.False(t, result.OK)
	assert.Equal(t, models.TransferFailed, result.ErrorKind)
	assert.Equal(t, int64(2), result.RowsTransferred)
	assert.Equal(t, 1, result.Batches)
	assert.Contains(t, result.Message, "rolled back")

	require.Len(t, recorder.Batches, 2)
	assert.True(t, recorder.Batches[0].Committed)
	assert.False(t, recorder.Batches[1].Committed)

	// the third page is never read
	assert.NoError(t, srcMock.ExpectationsWereMet())
	assert.NoError(t, dstMock.ExpectationsWereMet())
}

func TestTransferCancelWaitsForRunningBatch(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")
	f := faker.New()

	expectMySQLDestination(dstMock, "users")
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 4)
	srcMock.ExpectQuery(regexp.QuoteMeta(mysqlUsersSelect)).
		WithArgs(2, int64(0)).
		WillReturnRows(fakeUsers(f, 1, 2))
	dstMock.ExpectBegin()
	prep := dstMock.ExpectPrepare(regexp.QuoteMeta(mysqlUsersUpsert))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillDelayFor(300 * time.Millisecond).WillReturnResult(sqlmock.NewResult(0, 1))
	dstMock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	result := NewEngine(quietLogger(), nil).Transfer(ctx, mysqlRequest(src, dst, 2))

	// the first batch commits, the second is never started
	assert.False(t, result.OK)
	assert.Equal(t, models.TransferFailed, result.ErrorKind)
	assert.Equal(t, int64(2), result.RowsTransferred)
	assert.Equal(t, 1, result.Batches)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Contains(t, result.Message, "cancelled after 2 rows")
	assert.NoError(t, srcMock.ExpectationsWereMet())
	assert.NoError(t, dstMock.ExpectationsWereMet())
}

func TestTransferIsRepeatable(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")

	// both runs upsert the same three rows
	for run := 0; run < 2; run++ {
		expectMySQLDestination(dstMock, "users")
		expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 3)
		srcMock.ExpectQuery(regexp.QuoteMeta(mysqlUsersSelect)).
			WithArgs(1000, int64(0)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(int64(1), "ann").AddRow(int64(2), "bob").AddRow(int64(3), "cy"))
		dstMock.ExpectBegin()
		prep := dstMock.ExpectPrepare(regexp.QuoteMeta(mysqlUsersUpsert))
		prep.ExpectExec().WithArgs(int64(1), "ann").WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs(int64(2), "bob").WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs(int64(3), "cy").WillReturnResult(sqlmock.NewResult(0, 1))
		dstMock.ExpectCommit()
	}

	engine := NewEngine(quietLogger(), nil)
	first := engine.Transfer(context.Background(), mysqlRequest(src, dst, 1000))
	second := engine.Transfer(context.Background(), mysqlRequest(src, dst, 1000))

	assert.True(t, first.OK, first.Message)
	assert.True(t, second.OK, second.Message)
	assert.Equal(t, int64(3), first.RowsTransferred)
	assert.Equal(t, first.RowsTransferred, second.RowsTransferred)
	assert.NoError(t, srcMock.ExpectationsWereMet())
	assert.NoError(t, dstMock.ExpectationsWereMet())
}

func TestTransferToPostgres(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.Postgres, "dest")
	logger, hook := test.NewNullLogger()

	dstMock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 1)
	dstMock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "column_type", "is_nullable", "column_default", "is_identity"}).
			AddRow("id", "integer", "int4", "NO", "nextval('users_id_seq'::regclass)", "NO").
			AddRow("active", "boolean", "bool", "YES", nil, "NO").
			AddRow("name", "character varying", "varchar", "YES", nil, "NO").
			AddRow("payload", "bytea", "bytea", "YES", nil, "NO").
			AddRow("note", "text", "text", "YES", nil, "NO"))
	dstMock.ExpectQuery(regexp.QuoteMeta("tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "column_name"}).AddRow("users_pkey", "id"))

	srcMock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `active`, `name`, `payload` FROM `users` LIMIT ? OFFSET ?")).
		WithArgs(1000, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "active", "name", "payload"}).
			AddRow(int64(1), int64(1), []byte("alice"), []byte{0x00, 0x01}))

	dstMock.ExpectBegin()
	prep := dstMock.ExpectPrepare(regexp.QuoteMeta(
		`INSERT INTO "users" ("id", "active", "name", "payload") VALUES ($1, $2, $3, $4) ` +
			`ON CONFLICT ("id") DO UPDATE SET "active" = EXCLUDED."active", "name" = EXCLUDED."name", "payload" = EXCLUDED."payload"`))
	prep.ExpectExec().
		WithArgs(int64(1), true, "alice", []byte{0x00, 0x01}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dstMock.ExpectCommit()
	dstMock.ExpectExec(regexp.QuoteMeta("SELECT setval(pg_get_serial_sequence($1, $2)")).
		WithArgs(`"users"`, "id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := Request{
		Source:             src,
		Destination:        dst,
		SourceDialect:      dialect.MySQL{},
		DestinationDialect: dialect.Postgres{},
		SourceTable:        "users",
		DestinationTable:   "users",
		SourceColumns: []models.Column{
			{Name: "id", DataType: "int", ColumnType: "int(11)", IsAutoIncrement: true},
			{Name: "active", DataType: "tinyint", ColumnType: "tinyint(1)"},
			{Name: "name", DataType: "varchar", ColumnType: "varchar(45)"},
			{Name: "payload", DataType: "blob", ColumnType: "blob"},
		},
	}
	result := NewEngine(logger, nil).Transfer(context.Background(), req)

	require.True(t, result.OK, result.Message)
	assert.Equal(t, int64(1), result.RowsTransferred)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "note") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning about the destination-only column")

	assert.NoError(t, srcMock.ExpectationsWereMet())
	assert.NoError(t, dstMock.ExpectationsWereMet())
}

func TestTransferWithoutSharedColumns(t *testing.T) {
	src, srcMock := newMockConnector(t, models.MySQL, "source")
	dst, dstMock := newMockConnector(t, models.MySQL, "dest")

	expectMySQLDestination(dstMock, "users")
	expectCount(srcMock, "SELECT COUNT(*) FROM `users`", 5)

	req := mysqlRequest(src, dst, 10)
	req.SourceColumns = []models.Column{{Name: "other", DataType: "int"}}

	result := NewEngine(quietLogger(), nil).Transfer(context.Background(), req)
	assert.False(t, result.OK)
	assert.Equal(t, models.TransferFailed, result.ErrorKind)
	assert.Contains(t, result.Message, "share no columns")
	assert.NoError(t, dstMock.ExpectationsWereMet())
}
