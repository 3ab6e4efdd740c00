package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/classr/internal/domain"
)

// Composite indexes the struct tags cannot express.
var extraIndexes = []string{
	// autoclean: status = Done AND created_on <= cutoff
	`CREATE INDEX IF NOT EXISTS idx_job_status_created_on ON JOB (status, created_on)`,
	// classifier delete guard: unfinished jobs of one classifier
	`CREATE INDEX IF NOT EXISTS idx_job_classifier_status ON JOB (classifier_uid, status)`,
}

func AutoMigrateAll(db *gorm.DB) error {
	for _, m := range domain.Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
	}
	for _, stmt := range extraIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
