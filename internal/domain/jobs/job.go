package jobs

import (
	"time"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusRunning   Status = "Running"
	StatusDone      Status = "Done"
	StatusError     Status = "Error"

	// StatusProgress is accepted from work units as an alias of StatusRunning.
	StatusProgress Status = "Progress"
)

// Terminal reports whether no further progress transitions are expected.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

// TerminalStatuses is the guard list for conditional job updates.
var TerminalStatuses = []string{string(StatusDone), string(StatusError)}

type Job struct {
	UID                string    `gorm:"column:uid;primaryKey" json:"uid"`
	DirName            string    `gorm:"column:dir_name;not null" json:"dir_name"`
	CreatedOn          time.Time `gorm:"column:created_on;not null;index" json:"created_on"`
	ClassifierUID      *string   `gorm:"column:classifier_uid;index" json:"classifier_uid,omitempty"`
	Status             Status    `gorm:"column:status;not null;index" json:"status"`
	ProgressPercentage int       `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`
	ProgressText       string    `gorm:"column:progress_text" json:"progress_text"`
}

func (Job) TableName() string { return "JOB" }

// DirNameFor derives the on-disk work directory name for a job.
func DirNameFor(createdOn time.Time, uid string) string {
	return createdOn.Format("20060102150405") + "-" + uid
}

// JobStatus is the polling projection of a Job.
type JobStatus struct {
	Status             Status `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	ProgressText       string `json:"progress_text"`
}

func (j *Job) StatusView() JobStatus {
	return JobStatus{Status: j.Status, ProgressPercentage: j.ProgressPercentage, ProgressText: j.ProgressText}
}
