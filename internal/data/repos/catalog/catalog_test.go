package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/classr/internal/data/repos/testutil"
	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/pointers"
)

func TestResourceRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	repo := NewResourceRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	res := &types.Resource{
		UID:            testutil.NewUID(t),
		ResourceType:   "model",
		Title:          "m",
		CreatedOn:      now.Add(-time.Hour),
		LocalCreatedOn: now,
		Path:           "/data/resources/model-x",
	}
	require.NoError(t, repo.Create(dbc, res))

	ok, err := repo.Exists(dbc, res.UID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByUID(dbc, res.UID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.UID, got.UID)
	assert.Equal(t, res.ResourceType, got.ResourceType)
	assert.Equal(t, res.Title, got.Title)
	assert.Equal(t, res.Path, got.Path)
	assert.True(t, res.CreatedOn.Equal(got.CreatedOn), "created_on: %s vs %s", res.CreatedOn, got.CreatedOn)
	assert.True(t, res.LocalCreatedOn.Equal(got.LocalCreatedOn))

	err = repo.Create(dbc, res)
	assert.True(t, errors.Is(err, types.ErrAlreadyExists), "got %v", err)

	require.NoError(t, repo.Delete(dbc, res.UID))
	ok, err = repo.Exists(dbc, res.UID)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := repo.GetByUID(dbc, res.UID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Delete(dbc, res.UID)
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}

func TestClassifierRepoRoundTrip(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	log := testutil.Logger(t)
	repo := NewClassifierRepo(db, log)

	model := testutil.SeedResource(t, ctx, db, "model")
	vocab := testutil.SeedResource(t, ctx, db, "vocab")

	now := time.Now().UTC()
	c := &types.Classifier{
		UID:             testutil.NewUID(t),
		ModelType:       "KEYWORD",
		Title:           "tickets",
		Enabled:         true,
		Language:        "en",
		TestAccuracy:    pointers.Float64(0.87),
		TrainingSetSize: pointers.Int(1200),
		CreatedOn:       now.Add(-48 * time.Hour),
		FinishedOn:      pointers.Time(now.Add(-47 * time.Hour)),
		LocalCreatedOn:  now,
		State:           types.ClassifierReady,
		Resources:       map[string]string{"model": model.UID, "vocab": vocab.UID},
		Meta:            map[string]string{"threshold": "0.5", "lowercase": "true"},
	}
	require.NoError(t, repo.Create(dbc, c))

	got, err := repo.GetByUID(dbc, c.UID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.ModelType, got.ModelType)
	assert.Equal(t, c.Title, got.Title)
	assert.Equal(t, c.Enabled, got.Enabled)
	assert.Equal(t, c.Language, got.Language)
	assert.Equal(t, *c.TestAccuracy, *got.TestAccuracy)
	assert.Equal(t, *c.TrainingSetSize, *got.TrainingSetSize)
	assert.True(t, c.CreatedOn.Equal(got.CreatedOn))
	require.NotNil(t, got.FinishedOn)
	assert.True(t, c.FinishedOn.Equal(*got.FinishedOn))
	assert.True(t, c.LocalCreatedOn.Equal(got.LocalCreatedOn))
	assert.Equal(t, c.State, got.State)
	assert.Equal(t, c.Resources, got.Resources)
	assert.Equal(t, c.Meta, got.Meta)
	assert.True(t, got.Trained())

	all, err := repo.GetAll(dbc)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, c.Resources, all[0].Resources)

	err = repo.Create(dbc, c)
	assert.True(t, errors.Is(err, types.ErrAlreadyExists), "got %v", err)
}

func TestClassifierRepoMissingDependencyRollsBack(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	repo := NewClassifierRepo(db, testutil.Logger(t))

	present := testutil.SeedResource(t, ctx, db, "model")
	c := &types.Classifier{
		UID:            testutil.NewUID(t),
		ModelType:      "KEYWORD",
		CreatedOn:      time.Now().UTC(),
		LocalCreatedOn: time.Now().UTC(),
		State:          types.ClassifierCreated,
		Resources:      map[string]string{"model": present.UID, "vocab": "does-not-exist"},
		Meta:           map[string]string{"k": "v"},
	}
	err := repo.Create(dbc, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMissingDependency), "got %v", err)

	ok, err := repo.Exists(dbc, c.UID)
	require.NoError(t, err)
	assert.False(t, ok)

	var links, meta int64
	require.NoError(t, db.Model(&types.ClassifierResource{}).Where("classifier_uid = ?", c.UID).Count(&links).Error)
	require.NoError(t, db.Model(&types.ClassifierMeta{}).Where("classifier_uid = ?", c.UID).Count(&meta).Error)
	assert.Zero(t, links)
	assert.Zero(t, meta)
}

func TestResourceDeleteBlockedByClassifier(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	log := testutil.Logger(t)
	resources := NewResourceRepo(db, log)
	classifiers := NewClassifierRepo(db, log)

	model := testutil.SeedResource(t, ctx, db, "model")
	c := &types.Classifier{
		UID:            testutil.NewUID(t),
		ModelType:      "KEYWORD",
		CreatedOn:      time.Now().UTC(),
		LocalCreatedOn: time.Now().UTC(),
		State:          types.ClassifierCreated,
		Resources:      map[string]string{"model": model.UID},
	}
	require.NoError(t, classifiers.Create(dbc, c))

	err := resources.Delete(dbc, model.UID)
	assert.True(t, errors.Is(err, types.ErrHasDependents), "got %v", err)

	ok, err := resources.Exists(dbc, model.UID)
	require.NoError(t, err)
	assert.True(t, ok)
	after, err := classifiers.GetByUID(dbc, c.UID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, map[string]string{"model": model.UID}, after.Resources)

	require.NoError(t, classifiers.Delete(dbc, c.UID))
	require.NoError(t, resources.Delete(dbc, model.UID))
}

func TestClassifierDeleteBlockedByActiveJob(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	repo := NewClassifierRepo(db, testutil.Logger(t))

	c := &types.Classifier{
		UID:            testutil.NewUID(t),
		ModelType:      "KEYWORD",
		CreatedOn:      time.Now().UTC(),
		LocalCreatedOn: time.Now().UTC(),
		State:          types.ClassifierReady,
	}
	require.NoError(t, repo.Create(dbc, c))
	running := testutil.SeedJob(t, ctx, db, types.JobRunning, time.Now(), &c.UID)

	err := repo.Delete(dbc, c.UID)
	assert.True(t, errors.Is(err, types.ErrHasDependents), "got %v", err)

	require.NoError(t, db.Model(&types.Job{}).Where("uid = ?", running.UID).Update("status", types.JobDone).Error)
	require.NoError(t, repo.Delete(dbc, c.UID))
}

func TestClassifierUpdateFieldsTouchesOnlyNamedColumns(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	repo := NewClassifierRepo(db, testutil.Logger(t))

	c := &types.Classifier{
		UID:            testutil.NewUID(t),
		ModelType:      "KEYWORD",
		Title:          "keep me",
		Enabled:        true,
		CreatedOn:      time.Now().UTC(),
		LocalCreatedOn: time.Now().UTC(),
		State:          types.ClassifierReady,
	}
	require.NoError(t, repo.Create(dbc, c))
	require.NoError(t, repo.UpdateFields(dbc, c.UID, map[string]interface{}{"enabled": false}))

	got, err := repo.GetByUID(dbc, c.UID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "keep me", got.Title)
	assert.Equal(t, types.ClassifierReady, got.State)

	err = repo.UpdateFields(dbc, "nope", map[string]interface{}{"enabled": true})
	assert.True(t, errors.Is(err, types.ErrNotFound), "got %v", err)
}

func TestClassifierUpdateFieldsIfStateIsConditional(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Of(context.Background())
	repo := NewClassifierRepo(db, testutil.Logger(t))

	c := &types.Classifier{
		UID:            testutil.NewUID(t),
		ModelType:      "KEYWORD",
		Enabled:        true,
		CreatedOn:      time.Now().UTC(),
		LocalCreatedOn: time.Now().UTC(),
		State:          types.ClassifierCreated,
	}
	require.NoError(t, repo.Create(dbc, c))

	toTraining := map[string]interface{}{"state": types.ClassifierTraining}
	ok, err := repo.UpdateFieldsIfState(dbc, c.UID, types.ClassifierCreated, toTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	// The second caller loses: the row has already left Created.
	ok, err = repo.UpdateFieldsIfState(dbc, c.UID, types.ClassifierCreated, toTraining)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByUID(dbc, c.UID)
	require.NoError(t, err)
	assert.Equal(t, types.ClassifierTraining, got.State)

	ok, err = repo.UpdateFieldsIfState(dbc, "nope", types.ClassifierCreated, toTraining)
	require.NoError(t, err)
	assert.False(t, ok)
}
