package catalog

import "time"

type ClassifierState string

const (
	ClassifierCreated  ClassifierState = "Created"
	ClassifierTraining ClassifierState = "Training"
	ClassifierReady    ClassifierState = "Ready"
)

// Classifier is a model descriptor. Resources maps a role key ("model",
// "vocab", ...) to a Resource uid; Meta is free-form algorithm configuration.
// Both maps live in link tables and are hydrated by the repository.
type Classifier struct {
	UID             string          `gorm:"column:uid;primaryKey" json:"uid"`
	ModelType       string          `gorm:"column:type;not null;index" json:"model_type"`
	Title           string          `gorm:"column:title" json:"title"`
	Enabled         bool            `gorm:"column:enabled;not null" json:"enabled"`
	Language        string          `gorm:"column:language" json:"language"`
	TestAccuracy    *float64        `gorm:"column:test_accuracy" json:"test_accuracy,omitempty"`
	TrainingSetSize *int            `gorm:"column:training_set_size" json:"training_set_size,omitempty"`
	CreatedOn       time.Time       `gorm:"column:created_on;not null" json:"created_on"`
	FinishedOn      *time.Time      `gorm:"column:finished_on" json:"finished_on,omitempty"`
	LocalCreatedOn  time.Time       `gorm:"column:local_created_on;not null" json:"local_created_on"`
	State           ClassifierState `gorm:"column:state;not null" json:"state"`

	Resources map[string]string `gorm:"-" json:"resources"`
	Meta      map[string]string `gorm:"-" json:"meta"`
}

func (Classifier) TableName() string { return "CLASSIFIER" }

// Trained reports whether training has finished.
func (c *Classifier) Trained() bool { return c != nil && c.FinishedOn != nil }

// ClassifierResource is one entry of a classifier's dependency map.
type ClassifierResource struct {
	ClassifierUID string `gorm:"column:classifier_uid;primaryKey"`
	ResourceKey   string `gorm:"column:resource_key;primaryKey"`
	ResourceUID   string `gorm:"column:resource_uid;not null;index"`
}

func (ClassifierResource) TableName() string { return "CLASSIFIER_RESOURCE" }

type ClassifierMeta struct {
	ClassifierUID string `gorm:"column:classifier_uid;primaryKey"`
	Key           string `gorm:"column:key;primaryKey"`
	Value         string `gorm:"column:value"`
}

func (ClassifierMeta) TableName() string { return "CLASSIFIER_META" }
