package catalog

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

type ClassifierRepo interface {
	// Create inserts the classifier row with its resource links and meta rows
	// in one transaction. It fails with ErrAlreadyExists or ErrMissingDependency
	// and leaves no rows behind on any failure.
	Create(dbc dbctx.Context, c *types.Classifier) error
	GetByUID(dbc dbctx.Context, uid string) (*types.Classifier, error)
	GetAll(dbc dbctx.Context) ([]*types.Classifier, error)
	Exists(dbc dbctx.Context, uid string) (bool, error)
	// UpdateFields writes only the named columns.
	UpdateFields(dbc dbctx.Context, uid string, updates map[string]interface{}) error
	// UpdateFieldsIfState writes the columns only while the row is still in
	// state from. It reports false when no row matched.
	UpdateFieldsIfState(dbc dbctx.Context, uid string, from types.ClassifierState, updates map[string]interface{}) (bool, error)
	// Delete removes meta, links and the row. ErrHasDependents while a
	// non-terminal job still runs against the classifier.
	Delete(dbc dbctx.Context, uid string) error
}

type classifierRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClassifierRepo(db *gorm.DB, baseLog *logger.Logger) ClassifierRepo {
	return &classifierRepo{
		db:  db,
		log: baseLog.With("repo", "ClassifierRepo"),
	}
}

func (r *classifierRepo) Create(dbc dbctx.Context, c *types.Classifier) error {
	transaction := dbc.Conn(r.db)
	if c == nil || c.UID == "" {
		return fmt.Errorf("classifier uid required: %w", types.ErrInvalidArgument)
	}
	err := transaction.Transaction(func(txx *gorm.DB) error {
		var count int64
		if err := txx.Model(&types.Classifier{}).Where("uid = ?", c.UID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("classifier %s: %w", c.UID, types.ErrAlreadyExists)
		}

		keys := sortedKeys(c.Resources)
		for _, k := range keys {
			ruid := c.Resources[k]
			var n int64
			if err := txx.Model(&types.Resource{}).Where("uid = ?", ruid).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("classifier %s resource %q=%s: %w", c.UID, k, ruid, types.ErrMissingDependency)
			}
		}

		if err := txx.Create(c).Error; err != nil {
			return err
		}
		if len(keys) > 0 {
			links := make([]types.ClassifierResource, 0, len(keys))
			for _, k := range keys {
				links = append(links, types.ClassifierResource{ClassifierUID: c.UID, ResourceKey: k, ResourceUID: c.Resources[k]})
			}
			if err := txx.Create(&links).Error; err != nil {
				return err
			}
		}
		if len(c.Meta) > 0 {
			meta := make([]types.ClassifierMeta, 0, len(c.Meta))
			for _, k := range sortedKeys(c.Meta) {
				meta = append(meta, types.ClassifierMeta{ClassifierUID: c.UID, Key: k, Value: c.Meta[k]})
			}
			if err := txx.Create(&meta).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("classifier %s: %w", c.UID, types.ErrAlreadyExists)
	}
	return err
}

func (r *classifierRepo) GetByUID(dbc dbctx.Context, uid string) (*types.Classifier, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return nil, nil
	}
	var rows []*types.Classifier
	if err := transaction.
		Where("uid = ?", uid).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := r.hydrate(dbc, transaction, rows); err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (r *classifierRepo) GetAll(dbc dbctx.Context) ([]*types.Classifier, error) {
	transaction := dbc.Conn(r.db)
	rows := []*types.Classifier{}
	if err := transaction.
		Order("created_on ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if err := r.hydrate(dbc, transaction, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// hydrate fills Resources and Meta from the link tables.
func (r *classifierRepo) hydrate(dbc dbctx.Context, transaction *gorm.DB, rows []*types.Classifier) error {
	if len(rows) == 0 {
		return nil
	}
	byUID := make(map[string]*types.Classifier, len(rows))
	uids := make([]string, 0, len(rows))
	for _, c := range rows {
		c.Resources = map[string]string{}
		c.Meta = map[string]string{}
		byUID[c.UID] = c
		uids = append(uids, c.UID)
	}

	var links []types.ClassifierResource
	if err := transaction.
		Where("classifier_uid IN ?", uids).
		Find(&links).Error; err != nil {
		return err
	}
	for _, l := range links {
		if c := byUID[l.ClassifierUID]; c != nil {
			c.Resources[l.ResourceKey] = l.ResourceUID
		}
	}

	var meta []types.ClassifierMeta
	if err := transaction.
		Where("classifier_uid IN ?", uids).
		Find(&meta).Error; err != nil {
		return err
	}
	for _, m := range meta {
		if c := byUID[m.ClassifierUID]; c != nil {
			c.Meta[m.Key] = m.Value
		}
	}
	return nil
}

func (r *classifierRepo) Exists(dbc dbctx.Context, uid string) (bool, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" {
		return false, nil
	}
	var count int64
	if err := transaction.
		Model(&types.Classifier{}).
		Where("uid = ?", uid).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *classifierRepo) UpdateFields(dbc dbctx.Context, uid string, updates map[string]interface{}) error {
	transaction := dbc.Conn(r.db)
	if uid == "" || len(updates) == 0 {
		return nil
	}
	res := transaction.
		Model(&types.Classifier{}).
		Where("uid = ?", uid).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// sqlite reports matched rows, so zero means the uid is absent.
		return fmt.Errorf("classifier %s: %w", uid, types.ErrNotFound)
	}
	return nil
}

func (r *classifierRepo) UpdateFieldsIfState(dbc dbctx.Context, uid string, from types.ClassifierState, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Conn(r.db)
	if uid == "" || len(updates) == 0 {
		return false, nil
	}
	res := transaction.
		Model(&types.Classifier{}).
		Where("uid = ? AND state = ?", uid, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *classifierRepo) Delete(dbc dbctx.Context, uid string) error {
	transaction := dbc.Conn(r.db)
	return transaction.Transaction(func(txx *gorm.DB) error {
		var active int64
		if err := txx.Model(&types.Job{}).
			Where("classifier_uid = ? AND status NOT IN ?", uid, types.JobTerminalStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("classifier %s has %d unfinished job(s): %w", uid, active, types.ErrHasDependents)
		}
		if err := txx.Where("classifier_uid = ?", uid).Delete(&types.ClassifierMeta{}).Error; err != nil {
			return err
		}
		if err := txx.Where("classifier_uid = ?", uid).Delete(&types.ClassifierResource{}).Error; err != nil {
			return err
		}
		res := txx.Where("uid = ?", uid).Delete(&types.Classifier{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("classifier %s: %w", uid, types.ErrNotFound)
		}
		return nil
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
