package repository

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"convictionexecutor/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

// newSQLiteDB returns an isolated in-memory database with the full schema.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&model.Portfolio{},
		&model.ThresholdConfig{},
		&model.DecisionState{},
		&model.StrategyExecution{},
		&model.AgentExecution{},
		&model.Trade{},
		&model.Exception{},
	); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	return db
}

func seedPortfolio(t *testing.T, db *gorm.DB, name string, active bool) *model.Portfolio {
	t.Helper()
	p := &model.Portfolio{Name: name, Symbol: "BTCUSDT", Active: active, PeriodMinutes: 60}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to seed portfolio: %v", err)
	}
	return p
}

func ptrFloat(v float64) *float64 {
	return &v
}
