package domain

import (
	"time"

	"github.com/yungbote/classr/internal/domain/catalog"
	"github.com/yungbote/classr/internal/domain/jobs"
)

type (
	Resource           = catalog.Resource
	Classifier         = catalog.Classifier
	ClassifierState    = catalog.ClassifierState
	ClassifierResource = catalog.ClassifierResource
	ClassifierMeta     = catalog.ClassifierMeta

	Job       = jobs.Job
	JobStatus = jobs.Status
	JobView   = jobs.JobStatus
)

const (
	ClassifierCreated  = catalog.ClassifierCreated
	ClassifierTraining = catalog.ClassifierTraining
	ClassifierReady    = catalog.ClassifierReady

	JobScheduled = jobs.StatusScheduled
	JobRunning   = jobs.StatusRunning
	JobDone      = jobs.StatusDone
	JobError     = jobs.StatusError
	JobProgress  = jobs.StatusProgress
)

var JobTerminalStatuses = jobs.TerminalStatuses

func DirNameFor(createdOn time.Time, uid string) string { return jobs.DirNameFor(createdOn, uid) }

// Models lists every persisted table, in migration order.
func Models() []any {
	return []any{
		&catalog.Resource{},
		&catalog.Classifier{},
		&catalog.ClassifierResource{},
		&catalog.ClassifierMeta{},
		&jobs.Job{},
	}
}
