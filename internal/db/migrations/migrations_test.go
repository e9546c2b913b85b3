package migrations

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	migrator := New(db)
	if migrator == nil {
		t.Fatal("Expected migrator to be created, got nil")
	}
	if migrator.db != db {
		t.Error("Expected migrator to have the provided DB connection")
	}
}

func TestMigratorInitialize(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful initialization",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			expectError: false,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock DB: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			err = New(db).Initialize()

			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestMigratorApplied(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectError   bool
		expectedNames []string
	}{
		{
			name: "no applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
			},
		},
		{
			name: "multiple applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"name"}).
					AddRow("001_initial_schema").
					AddRow("002_retention_policies")
				mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
					WillReturnRows(rows)
			},
			expectedNames: []string{"001_initial_schema", "002_retention_policies"},
		},
		{
			name: "database query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock DB: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			applied, err := New(db).Applied()

			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
			if !tt.expectError && len(applied) != len(tt.expectedNames) {
				t.Errorf("Expected %d applied migrations, got %d", len(tt.expectedNames), len(applied))
			}
			for _, name := range tt.expectedNames {
				if !applied[name] {
					t.Errorf("Expected migration %s to be applied", name)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestMigratorMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	migration := &Migration{
		ID:      "001_test",
		Name:    "001_test",
		UpSQL:   "CREATE TABLE test_table (id INT)",
		DownSQL: "DROP TABLE test_table",
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE test_table`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO migrations`).
		WithArgs("001_test").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := New(db).Migrate([]*Migration{migration}); err != nil {
		t.Errorf("Migrate() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMigratorMigrateSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	migration := &Migration{
		ID:    "001_test",
		Name:  "001_test",
		UpSQL: "CREATE TABLE test_table (id INT)",
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test"))

	if err := New(db).Migrate([]*Migration{migration}); err != nil {
		t.Errorf("Migrate() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMigratorRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	migration := &Migration{
		ID:      "001_test",
		Name:    "001_test",
		UpSQL:   "CREATE TABLE test_table (id INT)",
		DownSQL: "DROP TABLE test_table",
	}

	mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test"))
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE test_table`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM migrations`).
		WithArgs("001_test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := New(db).Rollback([]*Migration{migration}); err != nil {
		t.Errorf("Rollback() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMigratorRollbackNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT name FROM migrations ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err = New(db).Rollback([]*Migration{InitialSchema})
	if err == nil {
		t.Error("Expected error when no migrations applied, got none")
	}
}

func TestAllOrderedAndComplete(t *testing.T) {
	all := All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(all))
	}
	for i, m := range all {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("Migration %s missing SQL", m.Name)
		}
		if i > 0 && strings.Compare(all[i-1].Name, m.Name) >= 0 {
			t.Errorf("Migrations out of order: %s before %s", all[i-1].Name, m.Name)
		}
	}
}
