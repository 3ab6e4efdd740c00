package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/dbctx"
	"github.com/yungbote/classr/internal/platform/logger"
)

// OutputFileName is the artifact a classification work unit leaves in its work dir.
const OutputFileName = "autolabeled.csv"

// LogFileName is the private append-only log inside every job work dir.
const LogFileName = "progress.log"

// Update is one progress report from a work unit.
type Update struct {
	Percentage int
	Text       string
	Status     types.JobStatus
}

// ProgressObserver is registered per job at creation and invoked synchronously
// after every persisted update. A returned error (or panic) turns the job into
// a terminal Error.
type ProgressObserver interface {
	OnProgress(ctx context.Context, h *Handle, u Update) error
}

type ObserverFunc func(ctx context.Context, h *Handle, u Update) error

func (f ObserverFunc) OnProgress(ctx context.Context, h *Handle, u Update) error { return f(ctx, h, u) }

// JobUpdater is the slice of the job repository a Handle writes through.
type JobUpdater interface {
	UpdateFieldsUnlessStatus(dbc dbctx.Context, uid string, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
}

/*
Handle is the only sanctioned way for a work unit to report progress.
It wraps:
  - the persisted Job row (snapshot at creation),
  - the job's work directory and private progress log,
  - the optional observer of a layered job type.

Every update is written with UpdateFieldsUnlessStatus(terminal statuses), so once
a job reaches Done or Error the store row is never moved again by a Handle.
Updates arriving after that are logged and dropped.
*/
type Handle struct {
	Job     types.Job
	WorkDir string

	ctx      context.Context
	repo     JobUpdater
	log      *logger.Logger
	jobLog   *logger.Logger
	observer ProgressObserver

	mu       sync.Mutex
	terminal bool
	last     Update
}

type HandleOptions struct {
	Job      types.Job
	WorkDir  string
	Repo     JobUpdater
	Log      *logger.Logger
	JobLog   *logger.Logger
	Observer ProgressObserver
}

func NewHandle(ctx context.Context, opts HandleOptions) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	jobLog := opts.JobLog
	if jobLog == nil {
		jobLog = logger.Nop()
	}
	return &Handle{
		Job:      opts.Job,
		WorkDir:  opts.WorkDir,
		ctx:      context.WithoutCancel(ctx),
		repo:     opts.Repo,
		log:      log.With("job_uid", opts.Job.UID),
		jobLog:   jobLog,
		observer: opts.Observer,
		terminal: opts.Job.Status.Terminal(),
		last:     Update{Percentage: opts.Job.ProgressPercentage, Text: opts.Job.ProgressText, Status: opts.Job.Status},
	}
}

func (h *Handle) UID() string { return h.Job.UID }

// OutputPath is where classification output is expected.
func (h *Handle) OutputPath() string { return filepath.Join(h.WorkDir, OutputFileName) }

// JobLog exposes the private progress log to work units.
func (h *Handle) JobLog() *logger.Logger { return h.jobLog }

func (h *Handle) Terminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal
}

// Last returns the most recent accepted update.
func (h *Handle) Last() Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

/*
UpdateProgress persists a progress report and notifies the observer.
Normalization:
  - Progress (and an empty status) become Running
  - Percentage is clamped into [0, 100]
  - Done and Error force the percentage to 100 and are terminal

Monotonic percentage is not enforced; the caller owns ordering.
The returned error only reflects a failed store write.
*/
func (h *Handle) UpdateProgress(pct int, text string, status types.JobStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apply(Update{Percentage: pct, Text: text, Status: status}, true)
}

// MarkDone is the conventional successful completion.
func (h *Handle) MarkDone() error {
	return h.UpdateProgress(100, "Done", types.JobDone)
}

// Fail records a terminal Error with err's message.
func (h *Handle) Fail(err error) error {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	return h.UpdateProgress(100, msg, types.JobError)
}

// Close releases the private log.
func (h *Handle) Close() error {
	return h.jobLog.Close()
}

func (h *Handle) apply(u Update, notify bool) error {
	if h.terminal {
		h.log.Warn("progress update after terminal state ignored",
			"status", u.Status,
			"percentage", u.Percentage,
			"text", u.Text,
		)
		return nil
	}
	u = normalize(u)

	ok, err := h.persist(u, types.JobTerminalStatuses)
	if err != nil {
		h.log.Error("persist job progress failed", "status", u.Status, "error", err)
		return fmt.Errorf("persist progress for job %s: %w", h.Job.UID, err)
	}
	if !ok {
		// Someone else finished (or removed) the row first.
		h.terminal = true
		h.log.Warn("job row already terminal or missing; update dropped", "status", u.Status)
		return nil
	}
	h.accept(u)

	if !notify || h.observer == nil {
		return nil
	}
	if oerr := h.observe(u); oerr != nil {
		h.log.Error("progress observer failed", "status", u.Status, "error", oerr)
		failed := Update{Percentage: 100, Text: progressText(oerr), Status: types.JobError}
		// The observer may fail on the Done report itself, so only Error is guarded here.
		if _, err := h.persist(failed, []string{string(types.JobError)}); err != nil {
			h.log.Error("persist observer failure failed", "error", err)
			return fmt.Errorf("persist progress for job %s: %w", h.Job.UID, err)
		}
		h.accept(failed)
	}
	return nil
}

func (h *Handle) accept(u Update) {
	h.last = u
	h.terminal = u.Status.Terminal()
	h.Job.Status = u.Status
	h.Job.ProgressPercentage = u.Percentage
	h.Job.ProgressText = u.Text

	line := fmt.Sprintf("JobProgress:%d %s", u.Percentage, u.Text)
	if u.Status == types.JobError {
		h.jobLog.Error(line)
	} else {
		h.jobLog.Info(line)
	}
}

func (h *Handle) persist(u Update, disallowed []string) (bool, error) {
	if h.repo == nil {
		return true, nil
	}
	return h.repo.UpdateFieldsUnlessStatus(dbctx.Of(h.ctx), h.Job.UID, disallowed, map[string]interface{}{
		"status":              u.Status,
		"progress_percentage": u.Percentage,
		"progress_text":       u.Text,
	})
}

func (h *Handle) observe(u Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress observer panic: %v", r)
		}
	}()
	return h.observer.OnProgress(h.ctx, h, u)
}

func normalize(u Update) Update {
	switch u.Status {
	case "", types.JobProgress:
		u.Status = types.JobRunning
	}
	if u.Percentage < 0 {
		u.Percentage = 0
	}
	if u.Percentage > 100 {
		u.Percentage = 100
	}
	if u.Status.Terminal() {
		u.Percentage = 100
	}
	return u
}

// progressText prefers the user-facing text an observer error carries.
func progressText(err error) string {
	var pt interface{ ProgressText() string }
	if errors.As(err, &pt) {
		return pt.ProgressText()
	}
	return err.Error()
}
