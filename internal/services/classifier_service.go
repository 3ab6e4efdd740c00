package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/classr/internal/data/repos"
	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/dispatch"
	"github.com/yungbote/classr/internal/jobs/runtime"
	"github.com/yungbote/classr/internal/models"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

// InputFileName is the copy of the caller's CSV kept in every classification work dir.
const InputFileName = "input.csv"

// Submitter hands a work unit to the pool.
type Submitter interface {
	Submit(h *runtime.Handle, work dispatch.Work)
}

type ClassifierOptions struct {
	EnableTraining       bool
	EnableClassification bool
}

type CreateClassifierRequest struct {
	UID       string
	ModelType string
	Title     string
	Language  string
	Enabled   bool
	Resources map[string]string
	Meta      map[string]string
}

type TrainRequest struct {
	// Optional labelled CSV for scoring.
	InputPath string
	DescCol   string
	ResCol    string
	LabelCol  string
}

type ClassifyRequest struct {
	InputPath   string
	DescCol     string
	ResCol      string
	OutClassCol string
	Export      bool
}

type ClassifierService struct {
	log        *logger.Logger
	repo       repos.ClassifierRepo
	resources  repos.ResourceRepo
	jobs       *JobService
	dispatcher Submitter
	registry   *models.Registry
	exporter   runtime.ProgressObserver
	opts       ClassifierOptions
	now        func() time.Time
}

type ClassifierServiceDeps struct {
	Classifiers repos.ClassifierRepo
	Resources   repos.ResourceRepo
	Jobs        *JobService
	Dispatcher  Submitter
	Registry    *models.Registry
	// Exporter is optional; Classify with Export fails without it.
	Exporter runtime.ProgressObserver
}

func NewClassifierService(baseLog *logger.Logger, deps ClassifierServiceDeps, opts ClassifierOptions) *ClassifierService {
	registry := deps.Registry
	if registry == nil {
		registry = models.NewDefaultRegistry()
	}
	return &ClassifierService{
		log:        baseLog.With("service", "ClassifierService"),
		repo:       deps.Classifiers,
		resources:  deps.Resources,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		registry:   registry,
		exporter:   deps.Exporter,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ClassifierService) Options() ClassifierOptions { return s.opts }

// Create adds a new untrained classifier.
func (s *ClassifierService) Create(ctx context.Context, req CreateClassifierRequest) (*types.Classifier, error) {
	if strings.TrimSpace(req.ModelType) == "" {
		return nil, fmt.Errorf("%w: model type required", types.ErrInvalidArgument)
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		var err error
		if uid, err = NewUID(); err != nil {
			return nil, err
		}
	}
	now := s.now()
	c := &types.Classifier{
		UID:            uid,
		ModelType:      req.ModelType,
		Title:          req.Title,
		Enabled:        req.Enabled,
		Language:       req.Language,
		CreatedOn:      now,
		LocalCreatedOn: now,
		State:          types.ClassifierCreated,
		Resources:      req.Resources,
		Meta:           req.Meta,
	}
	if err := s.repo.Create(dbctx.Of(ctx), c); err != nil {
		return nil, err
	}
	s.log.Info("classifier created", "classifier_uid", uid, "model_type", c.ModelType)
	return c, nil
}

// Save inserts a full record as given, stamping only local_created_on.
func (s *ClassifierService) Save(ctx context.Context, c *types.Classifier) error {
	if c == nil || strings.TrimSpace(c.UID) == "" {
		return fmt.Errorf("%w: classifier uid required", types.ErrInvalidArgument)
	}
	cp := *c
	cp.LocalCreatedOn = s.now()
	if cp.State == "" {
		cp.State = types.ClassifierCreated
		if cp.Trained() {
			cp.State = types.ClassifierReady
		}
	}
	if err := s.repo.Create(dbctx.Of(ctx), &cp); err != nil {
		return err
	}
	c.LocalCreatedOn = cp.LocalCreatedOn
	return nil
}

func (s *ClassifierService) Get(ctx context.Context, uid string) (*types.Classifier, error) {
	return s.repo.GetByUID(dbctx.Of(ctx), uid)
}

func (s *ClassifierService) GetAll(ctx context.Context) ([]*types.Classifier, error) {
	return s.repo.GetAll(dbctx.Of(ctx))
}

func (s *ClassifierService) Exists(ctx context.Context, uid string) (bool, error) {
	return s.repo.Exists(dbctx.Of(ctx), uid)
}

func (s *ClassifierService) SetEnabled(ctx context.Context, uid string, enabled bool) error {
	return s.repo.UpdateFields(dbctx.Of(ctx), uid, map[string]interface{}{"enabled": enabled})
}

// Remove leaves the referenced resources in place.
func (s *ClassifierService) Remove(ctx context.Context, uid string) error {
	if err := s.repo.Delete(dbctx.Of(ctx), uid); err != nil {
		return err
	}
	s.log.Info("classifier removed", "classifier_uid", uid)
	return nil
}

// Train starts a training job and returns its uid.
func (s *ClassifierService) Train(ctx context.Context, uid string, req TrainRequest) (string, error) {
	if !s.opts.EnableTraining {
		return "", fmt.Errorf("%w: training is disabled", types.ErrNotPermitted)
	}
	c, err := s.mustGet(ctx, uid)
	if err != nil {
		return "", err
	}
	if c.Trained() {
		return "", fmt.Errorf("%w: classifier %s is already trained", types.ErrInvalidArgument, uid)
	}
	if c.State == types.ClassifierTraining {
		return "", fmt.Errorf("%w: classifier %s is already training", types.ErrInvalidArgument, uid)
	}
	alg, err := s.registry.Get(c.ModelType)
	if err != nil {
		return "", err
	}
	paths, err := s.resourcePaths(ctx, c)
	if err != nil {
		return "", err
	}

	claimed, err := s.repo.UpdateFieldsIfState(dbctx.Of(ctx), uid, types.ClassifierCreated,
		map[string]interface{}{"state": types.ClassifierTraining})
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", fmt.Errorf("%w: classifier %s is already training or trained", types.ErrInvalidArgument, uid)
	}
	h, err := s.jobs.Create(ctx, &c.UID, nil)
	if err != nil {
		if rerr := s.repo.UpdateFields(dbctx.Of(context.WithoutCancel(ctx)), uid, map[string]interface{}{"state": types.ClassifierCreated}); rerr != nil {
			s.log.Warn("reset classifier state failed", "classifier_uid", uid, "error", rerr)
		}
		return "", err
	}

	in := models.TrainInput{
		Meta:          c.Meta,
		ResourcePaths: paths,
		InputPath:     req.InputPath,
		DescCol:       req.DescCol,
		ResCol:        req.ResCol,
		LabelCol:      req.LabelCol,
	}
	s.dispatcher.Submit(h, func(ctx context.Context, h *runtime.Handle) error {
		return s.runTraining(ctx, h, c.UID, alg, in)
	})
	s.log.Info("training submitted", "classifier_uid", uid, "job_uid", h.UID())
	return h.UID(), nil
}

func (s *ClassifierService) runTraining(ctx context.Context, h *runtime.Handle, uid string, alg models.Algorithm, in models.TrainInput) error {
	dbc := dbctx.Of(context.WithoutCancel(ctx))
	reset := func() {
		if err := s.repo.UpdateFields(dbc, uid, map[string]interface{}{"state": types.ClassifierCreated}); err != nil {
			s.log.Warn("reset classifier state failed", "classifier_uid", uid, "error", err)
		}
	}
	res, err := alg.Train(ctx, h, in)
	if err != nil {
		reset()
		return err
	}
	if h.Terminal() && h.Last().Status == types.JobError {
		// Failure was reported through the handle; the job already holds it.
		reset()
		return nil
	}
	updates := map[string]interface{}{
		"state":       types.ClassifierReady,
		"finished_on": s.now(),
	}
	if res.TestAccuracy != nil {
		updates["test_accuracy"] = *res.TestAccuracy
	}
	if res.TrainingSetSize != nil {
		updates["training_set_size"] = *res.TrainingSetSize
	}
	if err := s.repo.UpdateFields(dbc, uid, updates); err != nil {
		reset()
		return err
	}
	return h.UpdateProgress(100, "Training finished", types.JobDone)
}

// Classify starts a classification job over req.InputPath and returns its uid.
func (s *ClassifierService) Classify(ctx context.Context, uid string, req ClassifyRequest) (string, error) {
	if !s.opts.EnableClassification {
		return "", fmt.Errorf("%w: classification is disabled", types.ErrNotPermitted)
	}
	if strings.TrimSpace(req.DescCol) == "" || strings.TrimSpace(req.OutClassCol) == "" {
		return "", fmt.Errorf("%w: description and output class columns required", types.ErrInvalidArgument)
	}
	c, err := s.mustGet(ctx, uid)
	if err != nil {
		return "", err
	}
	if !c.Trained() {
		return "", fmt.Errorf("classifier %s: %w", uid, types.ErrNotTrained)
	}
	if !c.Enabled {
		return "", fmt.Errorf("classifier %s: %w", uid, types.ErrDisabled)
	}
	var observer runtime.ProgressObserver
	if req.Export {
		if s.exporter == nil {
			return "", fmt.Errorf("%w: results export is not configured", types.ErrNotPermitted)
		}
		observer = s.exporter
	}
	alg, err := s.registry.Get(c.ModelType)
	if err != nil {
		return "", err
	}
	paths, err := s.resourcePaths(ctx, c)
	if err != nil {
		return "", err
	}

	h, err := s.jobs.Create(ctx, &c.UID, observer)
	if err != nil {
		return "", err
	}
	input := filepath.Join(h.WorkDir, InputFileName)
	if err := copyFile(req.InputPath, input); err != nil {
		err = fmt.Errorf("%w: copy input: %v", types.ErrIO, err)
		_ = h.Fail(err)
		_ = h.Close()
		return "", err
	}

	in := models.ClassifyInput{
		Meta:          c.Meta,
		ResourcePaths: paths,
		InputPath:     input,
		OutputPath:    h.OutputPath(),
		DescCol:       req.DescCol,
		ResCol:        req.ResCol,
		OutClassCol:   req.OutClassCol,
	}
	s.dispatcher.Submit(h, func(ctx context.Context, h *runtime.Handle) error {
		return alg.Classify(ctx, h, in)
	})
	s.log.Info("classification submitted", "classifier_uid", uid, "job_uid", h.UID(), "export", req.Export)
	return h.UID(), nil
}

func (s *ClassifierService) mustGet(ctx context.Context, uid string) (*types.Classifier, error) {
	c, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("classifier %s: %w", uid, types.ErrNotFound)
	}
	return c, nil
}

// resourcePaths maps each role of c to its directory on disk.
func (s *ClassifierService) resourcePaths(ctx context.Context, c *types.Classifier) (map[string]string, error) {
	out := make(map[string]string, len(c.Resources))
	for role, resUID := range c.Resources {
		res, err := s.resources.GetByUID(dbctx.Of(ctx), resUID)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("%w: resource %s (%s) of classifier %s", types.ErrMissingDependency, resUID, role, c.UID)
		}
		out[role] = res.Path
	}
	return out, nil
}
