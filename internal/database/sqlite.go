package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/reputation"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const connectionPragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&elections.Election{},
		&elections.Candidate{},
		&elections.Vote{},
		&roles.Holder{},
		&reputation.Record{},
		&reputation.Entry{},
		&players.Identity{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func withPragmas(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + connectionPragmas
}
