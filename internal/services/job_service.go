package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yungbote/classr/internal/data/repos"
	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

const interruptedText = "Interrupted by server restart"

type JobService struct {
	log      *logger.Logger
	repo     repos.JobRepo
	workRoot string
	now      func() time.Time
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRepo, workRoot string) *JobService {
	return &JobService{
		log:      baseLog.With("service", "JobService"),
		repo:     repo,
		workRoot: resolveRoot(workRoot),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create allocates the work dir and private log, inserts the row as Scheduled
// and returns the handle the work unit reports through. observer may be nil.
func (s *JobService) Create(ctx context.Context, classifierUID *string, observer runtime.ProgressObserver) (*runtime.Handle, error) {
	uid, err := NewUID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	job := types.Job{
		UID:           uid,
		DirName:       types.DirNameFor(now, uid),
		CreatedOn:     now,
		ClassifierUID: classifierUID,
		Status:        types.JobScheduled,
	}
	workDir := filepath.Join(s.workRoot, job.DirName)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", types.ErrIO, err)
	}
	jobLog, err := logger.NewFile(filepath.Join(workDir, runtime.LogFileName))
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("%w: open job log: %v", types.ErrIO, err)
	}
	if err := s.repo.Create(dbctx.Of(ctx), &job); err != nil {
		_ = jobLog.Close()
		_ = os.RemoveAll(workDir)
		return nil, err
	}
	jobLog.Info("Job created")
	s.log.Debug("job created", "job_uid", uid, "work_dir", workDir)

	return runtime.NewHandle(ctx, runtime.HandleOptions{
		Job:      job,
		WorkDir:  workDir,
		Repo:     s.repo,
		Log:      s.log,
		JobLog:   jobLog,
		Observer: observer,
	}), nil
}

func (s *JobService) Get(ctx context.Context, uid string) (*types.Job, error) {
	return s.repo.GetByUID(dbctx.Of(ctx), uid)
}

func (s *JobService) GetAll(ctx context.Context) ([]*types.Job, error) {
	return s.repo.GetAll(dbctx.Of(ctx))
}

func (s *JobService) Exists(ctx context.Context, uid string) (bool, error) {
	return s.repo.Exists(dbctx.Of(ctx), uid)
}

// Status returns nil when the job does not exist.
func (s *JobService) Status(ctx context.Context, uid string) (*types.JobView, error) {
	job, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil || job == nil {
		return nil, err
	}
	v := job.StatusView()
	return &v, nil
}

// ListDone returns every Done job. Error jobs are kept for inspection.
func (s *JobService) ListDone(ctx context.Context) ([]*types.Job, error) {
	return s.repo.ListByStatus(dbctx.Of(ctx), []types.JobStatus{types.JobDone})
}

func (s *JobService) WorkDir(job *types.Job) string {
	return filepath.Join(s.workRoot, job.DirName)
}

// OutputPath is the classification artifact of a finished job.
func (s *JobService) OutputPath(ctx context.Context, uid string) (string, error) {
	job, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job %s: %w", uid, types.ErrNotFound)
	}
	if job.Status != types.JobDone {
		return "", fmt.Errorf("%w: job %s is %s", types.ErrInvalidArgument, uid, job.Status)
	}
	path := filepath.Join(s.WorkDir(job), runtime.OutputFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("job %s output: %w", uid, types.ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	return path, nil
}

// Remove deletes the row and the work directory.
func (s *JobService) Remove(ctx context.Context, uid string) error {
	job, err := s.repo.GetByUID(dbctx.Of(ctx), uid)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", uid, types.ErrNotFound)
	}
	if err := s.repo.Delete(dbctx.Of(ctx), uid); err != nil {
		return err
	}
	if err := os.RemoveAll(s.WorkDir(job)); err != nil {
		s.log.Warn("remove job work dir failed", "job_uid", uid, "error", err)
	}
	return nil
}

// RecoverInterrupted fails jobs left Scheduled or Running by a previous process.
// Must run before the dispatcher accepts work.
func (s *JobService) RecoverInterrupted(ctx context.Context) (int, error) {
	stale, err := s.repo.ListByStatus(dbctx.Of(ctx), []types.JobStatus{types.JobScheduled, types.JobRunning})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range stale {
		ok, err := s.repo.UpdateFieldsUnlessStatus(dbctx.Of(ctx), job.UID, types.JobTerminalStatuses, map[string]interface{}{
			"status":              types.JobError,
			"progress_percentage": 100,
			"progress_text":       interruptedText,
		})
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Warn("interrupted jobs marked as failed", "count", n)
	}
	return n, nil
}
