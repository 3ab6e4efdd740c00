package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/classr/internal/domain"
)

func NewUID(tb testing.TB) string {
	tb.Helper()
	id, err := uuid.NewUUID()
	if err != nil {
		tb.Fatalf("uuid: %v", err)
	}
	return id.String()
}

func SeedResource(tb testing.TB, ctx context.Context, tx *gorm.DB, resourceType string) *types.Resource {
	tb.Helper()
	now := time.Now().UTC()
	r := &types.Resource{
		UID:            NewUID(tb),
		ResourceType:   resourceType,
		Title:          resourceType + " bundle",
		CreatedOn:      now,
		LocalCreatedOn: now,
		Path:           "/nonexistent/" + resourceType,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed resource: %v", err)
	}
	return r
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, status types.JobStatus, createdOn time.Time, classifierUID *string) *types.Job {
	tb.Helper()
	uid := NewUID(tb)
	j := &types.Job{
		UID:           uid,
		DirName:       createdOn.Format("20060102150405") + "-" + uid,
		CreatedOn:     createdOn.UTC(),
		ClassifierUID: classifierUID,
		Status:        status,
	}
	if status.Terminal() {
		j.ProgressPercentage = 100
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
