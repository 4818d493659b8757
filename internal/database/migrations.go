package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSingleOpenElection      = "2026-10-01_single_open_election_index"
	migrationInactiveHoldersNotified = "2026-10-05_mark_inactive_role_holders_notified"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSingleOpenElection, apply: enforceSingleOpenElection},
		{name: migrationInactiveHoldersNotified, apply: markInactiveHoldersNotified},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// enforceSingleOpenElection closes every open election except the newest, then installs the
// partial unique index that keeps it that way.
func enforceSingleOpenElection(db *gorm.DB) error {
	var newest elections.Election
	err := db.Where("ended_at_s IS NULL").Order("started_at_s DESC, id DESC").Take(&newest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return err
	default:
		if err := db.Model(&elections.Election{}).
			Where("ended_at_s IS NULL AND id <> ?", newest.ID).
			Update("ended_at_s", time.Now().UTC().Unix()).Error; err != nil {
			return err
		}
	}
	return db.Exec(elections.SingleOpenElectionIndexSQL).Error
}

// markInactiveHoldersNotified stops expired mandates from producing late win notifications.
func markInactiveHoldersNotified(db *gorm.DB) error {
	return db.Model(&roles.Holder{}).
		Where("active = ? AND notified = ?", false, false).
		Update("notified", true).Error
}
