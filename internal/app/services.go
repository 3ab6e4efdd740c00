package app

import (
	"context"
	"fmt"

	"github.com/yungbote/classr/internal/config"
	"github.com/yungbote/classr/internal/data/repos"
	"github.com/yungbote/classr/internal/jobs/dispatch"
	"github.com/yungbote/classr/internal/jobs/export"
	"github.com/yungbote/classr/internal/models"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/services"
)

type Services struct {
	Paths       services.Paths
	Resources   *services.ResourceService
	Jobs        *services.JobService
	Classifiers *services.ClassifierService
}

// wireServices builds the services and fails jobs interrupted by the previous
// process before the dispatcher can receive new work.
func wireServices(ctx context.Context, log *logger.Logger, cfg *config.Config, r *repos.Repos, d *dispatch.Dispatcher, exporter *export.Exporter) (Services, error) {
	log.Info("Wiring services...")
	paths := services.Paths{
		ResourcesRoot: cfg.Data.ResourcesPath,
		WorkRoot:      cfg.Data.WorkPath,
		TempDir:       cfg.Data.TempPath,
	}
	if err := paths.Ensure(); err != nil {
		return Services{}, fmt.Errorf("create data dirs: %w", err)
	}

	jobs := services.NewJobService(log, r.Jobs, paths.WorkRoot)
	if _, err := jobs.RecoverInterrupted(ctx); err != nil {
		return Services{}, fmt.Errorf("recover interrupted jobs: %w", err)
	}

	deps := services.ClassifierServiceDeps{
		Classifiers: r.Classifiers,
		Resources:   r.Resources,
		Jobs:        jobs,
		Dispatcher:  d,
		Registry:    models.NewDefaultRegistry(),
	}
	// A nil *Exporter must not become a non-nil interface.
	if exporter != nil {
		deps.Exporter = exporter
	}

	return Services{
		Paths:     paths,
		Resources: services.NewResourceService(log, r.Resources, paths),
		Jobs:      jobs,
		Classifiers: services.NewClassifierService(log, deps, services.ClassifierOptions{
			EnableTraining:       cfg.Server.EnableTraining,
			EnableClassification: cfg.Server.EnableClassification,
		}),
	}, nil
}
