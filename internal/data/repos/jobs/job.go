package jobs

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) error
	GetByUID(dbc dbctx.Context, uid string) (*types.Job, error)
	GetAll(dbc dbctx.Context) ([]*types.Job, error)
	ListByStatus(dbc dbctx.Context, statuses []types.JobStatus) ([]*types.Job, error)
	Exists(dbc dbctx.Context, uid string) (bool, error)
	UpdateFields(dbc dbctx.Context, uid string, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus applies updates only while the row's status is
	// not one of disallowedStatuses and reports whether a row was written.
	UpdateFieldsUnlessStatus(dbc dbctx.Context, uid string, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Delete(dbc dbctx.Context, uid string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) error {
	transaction := dbc.Conn(r.db)
	if job == nil || job.UID == "" {
		return fmt.Errorf("job uid required: %w", types.ErrInvalidArgument)
	}
	err := transaction.Create(job).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("job %s: %w", job.UID, types.ErrAlreadyExists)
	}
	return err
}

func (r *jobRepo) GetByUID(dbc dbctx.Context, uid string) (*types.Job, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return nil, nil
	}
	var out []*types.Job
	if err := transaction.
		Where("uid = ?", uid).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *jobRepo) GetAll(dbc dbctx.Context) ([]*types.Job, error) {
	transaction := dbc.Conn(r.db)
	out := []*types.Job{}
	if err := transaction.
		Order("created_on ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListByStatus(dbc dbctx.Context, statuses []types.JobStatus) ([]*types.Job, error) {
	transaction := dbc.Conn(r.db)
	out := []*types.Job{}
	if len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.
		Where("status IN ?", statuses).
		Order("created_on ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) Exists(dbc dbctx.Context, uid string) (bool, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return false, nil
	}
	var count int64
	if err := transaction.
		Model(&types.Job{}).
		Where("uid = ?", uid).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *jobRepo) UpdateFields(dbc dbctx.Context, uid string, updates map[string]interface{}) error {
	transaction := dbc.Conn(r.db)
	if uid == "" || len(updates) == 0 {
		return nil
	}
	return transaction.
		Model(&types.Job{}).
		Where("uid = ?", uid).
		Updates(updates).Error
}

func (r *jobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, uid string, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" || len(updates) == 0 {
		return false, nil
	}

	q := transaction.
		Model(&types.Job{}).
		Where("uid = ?", uid)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) Delete(dbc dbctx.Context, uid string) error {
	transaction := dbc.Conn(r.db)
	res := transaction.
		Where("uid = ?", uid).
		Delete(&types.Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", uid, types.ErrNotFound)
	}
	return nil
}
