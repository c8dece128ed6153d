package migrations

import (
	"errors"
	"io/fs"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x Int32);

-- another
CREATE TABLE b (y String DEFAULT 'it''s');
`
	stmts, err := splitStatements(input)
	if err != nil {
		t.Fatalf("splitStatements: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x Int32)" {
		t.Errorf("unexpected first statement %q", stmts[0])
	}
}

func TestSplitStatementsRejectsQuotedSemicolon(t *testing.T) {
	_, err := splitStatements(`INSERT INTO t VALUES ('a;b');`)
	if !errors.Is(err, errQuotedSemicolon) {
		t.Fatalf("expected errQuotedSemicolon, got %v", err)
	}
}

func TestEmbeddedMigrationsSplit(t *testing.T) {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("sqlFiles: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no clickhouse migrations embedded")
	}
	for _, f := range files {
		data, _ := fs.ReadFile(ClickhouseFS, "clickhouse/"+f)
		if _, err := splitStatements(string(data)); err != nil {
			t.Errorf("%s: %v", f, err)
		}
	}

	pg, err := sqlFiles(PostgresFS, "postgres")
	if err != nil || len(pg) == 0 {
		t.Fatalf("postgres migrations missing: %v", err)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/contest")
	if err != nil || db != "contest" {
		t.Errorf("databaseFromDSN = %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}
