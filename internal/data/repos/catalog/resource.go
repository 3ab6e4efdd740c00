package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

type ResourceRepo interface {
	Create(dbc dbctx.Context, res *types.Resource) error
	GetByUID(dbc dbctx.Context, uid string) (*types.Resource, error)
	GetAll(dbc dbctx.Context) ([]*types.Resource, error)
	Exists(dbc dbctx.Context, uid string) (bool, error)
	// Delete removes the row; ErrHasDependents when any classifier still links it.
	Delete(dbc dbctx.Context, uid string) error
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{
		db:  db,
		log: baseLog.With("repo", "ResourceRepo"),
	}
}

func (r *resourceRepo) Create(dbc dbctx.Context, res *types.Resource) error {
	transaction := dbc.Conn(r.db)
	if res == nil || res.UID == "" {
		return fmt.Errorf("resource uid required: %w", types.ErrInvalidArgument)
	}
	err := transaction.Transaction(func(txx *gorm.DB) error {
		var count int64
		if err := txx.Model(&types.Resource{}).Where("uid = ?", res.UID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("resource %s: %w", res.UID, types.ErrAlreadyExists)
		}
		return txx.Create(res).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("resource %s: %w", res.UID, types.ErrAlreadyExists)
	}
	return err
}

func (r *resourceRepo) GetByUID(dbc dbctx.Context, uid string) (*types.Resource, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return nil, nil
	}
	var out []*types.Resource
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

func (r *resourceRepo) GetAll(dbc dbctx.Context) ([]*types.Resource, error) {
	transaction := dbc.Conn(r.db)
	out := []*types.Resource{}
	if err := transaction.
		Order("created_on ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resourceRepo) Exists(dbc dbctx.Context, uid string) (bool, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return false, nil
	}
	var count int64
	if err := transaction.
		Model(&types.Resource{}).
		Where("uid = ?", uid).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *resourceRepo) Delete(dbc dbctx.Context, uid string) error {
	transaction := dbc.Conn(r.db)
	return transaction.Transaction(func(txx *gorm.DB) error {
		var refs int64
		if err := txx.Model(&types.ClassifierResource{}).
			Where("resource_uid = ?", uid).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("resource %s is referenced by %d classifier link(s): %w", uid, refs, types.ErrHasDependents)
		}
		res := txx.Where("uid = ?", uid).Delete(&types.Resource{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("resource %s: %w", uid, types.ErrNotFound)
		}
		return nil
	})
}
