package catalog

import "time"

// Resource is an immutable artifact bundle extracted under the resources root.
type Resource struct {
	UID            string    `gorm:"column:uid;primaryKey" json:"uid"`
	ResourceType   string    `gorm:"column:type;not null;index" json:"resource_type"`
	Title          string    `gorm:"column:title" json:"title"`
	CreatedOn      time.Time `gorm:"column:created_on;not null" json:"created_on"`
	LocalCreatedOn time.Time `gorm:"column:local_created_on;not null" json:"local_created_on"`
	Path           string    `gorm:"column:path;not null" json:"path"`
}

func (Resource) TableName() string { return "RESOURCE" }
