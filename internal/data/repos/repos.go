package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/classr/internal/data/repos/catalog"
	"github.com/yungbote/classr/internal/data/repos/jobs"
	"github.com/yungbote/classr/internal/platform/logger"
)

type ResourceRepo = catalog.ResourceRepo
type ClassifierRepo = catalog.ClassifierRepo
type JobRepo = jobs.JobRepo

// Repos is the entity store: one set of repositories over one database handle.
type Repos struct {
	Resources   ResourceRepo
	Classifiers ClassifierRepo
	Jobs        JobRepo
}

func New(db *gorm.DB, log *logger.Logger) *Repos {
	return &Repos{
		Resources:   catalog.NewResourceRepo(db, log),
		Classifiers: catalog.NewClassifierRepo(db, log),
		Jobs:        jobs.NewJobRepo(db, log),
	}
}
