package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"contract_info", "config", "counters", "continuations", "reward_bonds", "chains", "dispatches"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

// Schema tests

func TestSchema_ContinuationsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "continuations")
	for _, col := range []string{"id", "flow_token", "kind", "next_action", "payload", "record", "seq"} {
		if !contains(columns, col) {
			t.Errorf("continuations missing column %q, got %v", col, columns)
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"continuations": "idx_continuations_flow",
		"reward_bonds":  "idx_reward_bonds_depositor",
		"dispatches":    "idx_dispatches_flow_seq",
	}
	for table, index := range checks {
		if !contains(getTableIndexes(t, s.db, table), index) {
			t.Errorf("table %q missing index %q", table, index)
		}
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Build a v1 database whose reward_bonds table predates flow_token.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE reward_bonds (
			seq                INTEGER PRIMARY KEY AUTOINCREMENT,
			depositor          TEXT NOT NULL,
			amount             TEXT NOT NULL,
			bonding_period_sec INTEGER NOT NULL,
			bonding_start      INTEGER NOT NULL
		);
		INSERT INTO reward_bonds (depositor, amount, bonding_period_sec, bonding_start)
		VALUES ('alice', '421', 60, 1000);
		PRAGMA user_version = 1;
	`); err != nil {
		t.Fatalf("failed to build v1 schema: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if !contains(getTableColumns(t, s.db, "reward_bonds"), "flow_token") {
		t.Error("migration did not add reward_bonds.flow_token")
	}

	var flow string
	if err := s.db.QueryRow("SELECT flow_token FROM reward_bonds WHERE depositor = 'alice'").Scan(&flow); err != nil {
		t.Fatalf("existing bond unreadable after migration: %v", err)
	}
	if flow != "" {
		t.Errorf("flow_token = %q, want empty default", flow)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
