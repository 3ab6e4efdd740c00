// Package export publishes classification output to an external sink once a
// job finishes. The Exporter is attached to a job as its progress observer.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
	"github.com/yungbote/classr/internal/platform/logger"
)

const DefaultBatchSize = 1000

// Row is one line of a job's output CSV keyed by header.
type Row struct {
	JobUID        string
	ClassifierUID string
	Index         int
	Fields        map[string]string
}

// Sink is an external store results are copied into.
type Sink interface {
	Name() string
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx groups the batches of one job's export.
type Tx interface {
	Insert(ctx context.Context, rows []Row) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Exporter struct {
	log       *logger.Logger
	sink      Sink
	gate      *semaphore.Weighted
	batchSize int
}

// NewExporter shares gate across every exporter of the process so that no two
// jobs interleave their insert-then-commit sequences. A nil gate gets a private one.
func NewExporter(baseLog *logger.Logger, sink Sink, gate *semaphore.Weighted, batchSize int) *Exporter {
	if gate == nil {
		gate = semaphore.NewWeighted(1)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Exporter{
		log:       baseLog.With("component", "Exporter", "sink", sink.Name()),
		sink:      sink,
		gate:      gate,
		batchSize: batchSize,
	}
}

// OnProgress acts only on the Done report. It runs under the handle's lock and
// must not report progress itself.
func (e *Exporter) OnProgress(ctx context.Context, h *runtime.Handle, u runtime.Update) error {
	if u.Status != types.JobDone {
		return nil
	}
	n, err := e.Export(ctx, h.UID(), classifierOf(h), h.OutputPath())
	if err != nil {
		h.JobLog().Error("Failed exporting results", "error", err)
		return &exportError{err: err}
	}
	h.JobLog().Info(fmt.Sprintf("Exported %d rows to %s", n, e.sink.Name()))
	return nil
}

// exportError shows the capitalized job text in progress while keeping the
// error string conventional.
type exportError struct{ err error }

func (e *exportError) Error() string { return "failed exporting results: " + e.err.Error() }
func (e *exportError) Unwrap() error { return e.err }
func (e *exportError) ProgressText() string { return "Failed exporting results: " + e.err.Error() }

// Export copies the CSV at path into the sink and returns the row count.
func (e *Exporter) Export(ctx context.Context, jobUID, classifierUID, path string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open output: %v", types.ErrIO, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read output header: %v", types.ErrIO, err)
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer e.gate.Release(1)

	tx, err := e.sink.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
				e.log.Warn("export rollback failed", "job_uid", jobUID, "error", rerr)
			}
		}
	}()

	batch := make([]Row, 0, e.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := tx.Insert(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for {
		rec, rerr := r.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return n, fmt.Errorf("%w: read output row %d: %v", types.ErrIO, n+1, rerr)
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				fields[col] = rec[i]
			}
		}
		batch = append(batch, Row{JobUID: jobUID, ClassifierUID: classifierUID, Index: n, Fields: fields})
		n++
		if len(batch) >= e.batchSize {
			if err = flush(); err != nil {
				return n, err
			}
		}
	}
	if err = flush(); err != nil {
		return n, err
	}
	if err = tx.Commit(ctx); err != nil {
		return n, err
	}
	e.log.Info("results exported", "job_uid", jobUID, "rows", n)
	return n, nil
}

func classifierOf(h *runtime.Handle) string {
	if h.Job.ClassifierUID == nil {
		return ""
	}
	return *h.Job.ClassifierUID
}
