package migrations

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func twoStepFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INT);")},
		"sql/000002_two.down.sql": {Data: []byte("DROP TABLE two;")},
		"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INT);")},
		"sql/000001_one.down.sql": {Data: []byte("DROP TABLE one;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(advisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS buster_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectUnlock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(advisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestLoadMigrationsSortsAndPairs(t *testing.T) {
	items, err := loadMigrations(twoStepFS())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].version != 1 || items[1].version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[0].name != "one" || items[0].checksum != checksumOf("CREATE TABLE one (id INT);") {
		t.Fatalf("first migration = %+v", items[0])
	}
}

func TestLoadMigrationsRejectsIncompletePairs(t *testing.T) {
	cases := map[string]struct {
		fsys fstest.MapFS
		want string
	}{
		"missing down": {
			fsys: fstest.MapFS{"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")}},
			want: "missing down SQL",
		},
		"missing up": {
			fsys: fstest.MapFS{"sql/000001_one.down.sql": {Data: []byte("SELECT 1;")}},
			want: "missing up SQL",
		},
		"conflicting names": {
			fsys: fstest.MapFS{
				"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
				"sql/000001_uno.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "conflicting names",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("loadMigrations() error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestUpAppliesPendingMigrationsUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoStepFS()}

	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, checksum FROM buster_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).
			AddRow(int64(1), checksumOf("CREATE TABLE one (id INT);")))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE two (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO buster_schema_migrations (version, name, checksum) VALUES ($1, $2, $3)")).
		WithArgs(int64(2), "two", checksumOf("CREATE TABLE two (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectUnlock(mock)

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestUpRefusesWhenAppliedScriptChanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoStepFS()}

	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, checksum FROM buster_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow(int64(1), "stale"))
	expectUnlock(mock)

	applied, err := runner.Up(context.Background(), db, 0)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Up() error = %v, want ErrChecksumMismatch", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestUpReleasesLockWhenScriptFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoStepFS()}

	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, checksum FROM buster_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE one (id INT);")).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	expectUnlock(mock)

	applied, err := runner.Up(context.Background(), db, 0)
	if err == nil || !strings.Contains(err.Error(), "apply migration 1") {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDownRollsBackNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoStepFS()}

	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, checksum FROM buster_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow(int64(1), "").AddRow(int64(2), ""))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE two;")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM buster_schema_migrations WHERE version = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectUnlock(mock)

	rolledBack, err := runner.Down(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("rolledBack = %d, want 1", rolledBack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestStatusReportsModifiedScripts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS buster_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, checksum FROM buster_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow(int64(1), "edited"))

	status, err := runner.Status(context.Background(), db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	want := []VersionStatus{
		{Version: 1, Name: "one", Applied: true, Modified: true},
		{Version: 2, Name: "two"},
	}
	if len(status) != len(want) {
		t.Fatalf("status = %+v", status)
	}
	for i := range want {
		if status[i] != want[i] {
			t.Fatalf("status[%d] = %+v, want %+v", i, status[i], want[i])
		}
	}
}
