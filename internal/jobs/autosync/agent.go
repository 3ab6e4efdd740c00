// Package autosync replicates trained classifiers, and the resources they
// depend on, from one peer into the local store.
package autosync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/services"
)

const (
	DefaultGrace    = 7 * time.Second
	DefaultInterval = 24 * time.Hour
)

// Peer is the remote side of a sync.
type Peer interface {
	URL() string
	GetAllClassifiers(ctx context.Context) ([]*types.Classifier, error)
	GetResource(ctx context.Context, uid string) (*types.Resource, error)
	DownloadResource(ctx context.Context, uid string, w io.Writer) error
}

type ResourceStore interface {
	Exists(ctx context.Context, uid string) (bool, error)
	AddFromTarGz(ctx context.Context, req services.AddResourceRequest, tarGzPath string) (*types.Resource, error)
}

type ClassifierStore interface {
	Exists(ctx context.Context, uid string) (bool, error)
	Save(ctx context.Context, c *types.Classifier) error
}

type Options struct {
	Name          string
	AcceptedTypes []string
	Interval      time.Duration
	Grace         time.Duration
	TempDir       string
	Clock         clock.Clock
	// OnReport, if set, receives every completed cycle's report.
	OnReport      func(*Report)
}

// Report summarizes one cycle.
type Report struct {
	Peer       string
	Candidates []string
	Synced     []string
	Resources  []string
	Failed     map[string]error
}

type Agent struct {
	log         *logger.Logger
	name        string
	peer        Peer
	resources   ResourceStore
	classifiers ClassifierStore
	accepted    map[string]struct{}
	interval    time.Duration
	grace       time.Duration
	tempDir     string
	clock       clock.Clock
	onReport    func(*Report)
}

func New(baseLog *logger.Logger, peer Peer, resources ResourceStore, classifiers ClassifierStore, opts Options) *Agent {
	accepted := make(map[string]struct{}, len(opts.AcceptedTypes))
	for _, t := range opts.AcceptedTypes {
		accepted[t] = struct{}{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Name == "" {
		opts.Name = peer.URL()
	}
	return &Agent{
		log:         baseLog.With("component", "Autosync", "peer", opts.Name),
		name:        opts.Name,
		peer:        peer,
		resources:   resources,
		classifiers: classifiers,
		accepted:    accepted,
		interval:    opts.Interval,
		grace:       opts.Grace,
		tempDir:     opts.TempDir,
		clock:       opts.Clock,
		onReport:    opts.OnReport,
	}
}

func (a *Agent) Name() string { return a.name }

// Run blocks until ctx ends. The first cycle starts after the grace period and
// each following one an interval after the previous finished.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("autosync started", "url", a.peer.URL(), "interval", a.interval.String())
	wait := a.grace
	for {
		select {
		case <-ctx.Done():
			a.log.Info("autosync stopped")
			return nil
		case <-a.clock.After(wait):
		}
		a.cycle(ctx)
		wait = a.interval
	}
}

func (a *Agent) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("autosync cycle panic", "panic", r)
		}
	}()
	rep, err := a.SyncOnce(ctx)
	if err != nil {
		a.log.Warn("autosync cycle failed", "error", err)
		return
	}
	if a.onReport != nil {
		a.onReport(rep)
	}
	if len(rep.Candidates) > 0 {
		a.log.Info("autosync cycle finished",
			"candidates", len(rep.Candidates),
			"synced", len(rep.Synced),
			"resources", len(rep.Resources),
			"failed", len(rep.Failed),
		)
	}
}

// SyncOnce runs a single cycle. An error is returned only when the peer's
// catalogue cannot be listed; per-candidate failures are in the report.
func (a *Agent) SyncOnce(ctx context.Context) (*Report, error) {
	ctx, span := otel.Tracer("classr/autosync").Start(ctx, "autosync.cycle")
	span.SetAttributes(attribute.String("peer", a.name))
	defer span.End()

	rep := &Report{Peer: a.name, Failed: map[string]error{}}
	remote, err := a.peer.GetAllClassifiers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}
	candidates, err := a.filter(ctx, remote)
	if err != nil {
		return rep, err
	}
	for _, c := range candidates {
		rep.Candidates = append(rep.Candidates, c.UID)
		fetched, err := a.fetch(ctx, c)
		rep.Resources = append(rep.Resources, fetched...)
		if err != nil {
			a.log.Warn("autosync candidate failed", "classifier_uid", c.UID, "error", err)
			rep.Failed[c.UID] = err
			continue
		}
		rep.Synced = append(rep.Synced, c.UID)
		a.log.Info("classifier synced", "classifier_uid", c.UID, "model_type", c.ModelType)
	}
	span.SetAttributes(attribute.Int("synced", len(rep.Synced)), attribute.Int("failed", len(rep.Failed)))
	return rep, nil
}

func (a *Agent) filter(ctx context.Context, remote []*types.Classifier) ([]*types.Classifier, error) {
	out := make([]*types.Classifier, 0, len(remote))
	for _, c := range remote {
		if c == nil {
			continue
		}
		if _, ok := a.accepted[c.ModelType]; !ok || !c.Trained() || !c.Enabled {
			continue
		}
		exists, err := a.classifiers.Exists(ctx, c.UID)
		if err != nil {
			return nil, err
		}
		if !exists {
			out = append(out, c)
		}
	}
	return out, nil
}

// fetch brings in the missing resources of c, then c itself. Resources fetched
// before a failure stay in the store.
func (a *Agent) fetch(ctx context.Context, c *types.Classifier) ([]string, error) {
	var fetched []string
	roles := make([]string, 0, len(c.Resources))
	for role := range c.Resources {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	seen := map[string]struct{}{}
	for _, role := range roles {
		uid := c.Resources[role]
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		exists, err := a.resources.Exists(ctx, uid)
		if err != nil {
			return fetched, err
		}
		if exists {
			continue
		}
		if err := a.fetchResource(ctx, uid); err != nil {
			return fetched, fmt.Errorf("resource %s (%s): %w", uid, role, err)
		}
		fetched = append(fetched, uid)
	}

	if err := a.classifiers.Save(ctx, c); err != nil {
		return fetched, err
	}
	return fetched, nil
}

func (a *Agent) fetchResource(ctx context.Context, uid string) error {
	meta, err := a.peer.GetResource(ctx, uid)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: peer has no resource %s", types.ErrRemote, uid)
	}

	tmp := filepath.Join(a.tempDir, "remote-"+services.Sanitize(uid)+".tar.gz")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	defer os.Remove(tmp)
	if err := a.peer.DownloadResource(ctx, uid, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrIO, err)
	}

	created := meta.CreatedOn
	_, err = a.resources.AddFromTarGz(ctx, services.AddResourceRequest{
		UID:       uid,
		Type:      meta.ResourceType,
		Title:     meta.Title,
		CreatedOn: &created,
	}, tmp)
	return err
}
