package app

import (
	"fmt"

	"github.com/yungbote/classr/internal/config"
	"github.com/yungbote/classr/internal/jobs/autoclean"
	"github.com/yungbote/classr/internal/jobs/autosync"
	"github.com/yungbote/classr/internal/observability"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/remote"
)

func wireAgents(log *logger.Logger, cfg *config.Config, svc Services, m *observability.Metrics) ([]*autosync.Agent, error) {
	agents := make([]*autosync.Agent, 0, len(cfg.Autosync))
	for _, p := range cfg.Autosync {
		client, err := remote.New(remote.Options{
			URL:        p.URL,
			APIKey:     p.APIKey,
			Timeout:    p.Timeout.Duration,
			MaxRetries: p.MaxRetries,
			Log:        log.With("component", "remote"),
		})
		if err != nil {
			return nil, fmt.Errorf("autosync peer %s: %w", p.Name, err)
		}
		name := p.Name
		agents = append(agents, autosync.New(log, client, svc.Resources, svc.Classifiers, autosync.Options{
			Name:          name,
			AcceptedTypes: p.ModelTypes,
			Interval:      p.Interval.Duration,
			Grace:         p.Grace.Duration,
			TempDir:       svc.Paths.TempDir,
			OnReport: func(rep *autosync.Report) {
				m.ClassifiersSynced(name, len(rep.Synced), len(rep.Failed))
			},
		}))
	}
	return agents, nil
}

// wireSweeper returns nil when job cleaning is disabled.
func wireSweeper(log *logger.Logger, cfg *config.Config, svc Services, m *observability.Metrics) *autoclean.Sweeper {
	if cfg.Server.CleanJobsAfterDays <= 0 {
		return nil
	}
	return autoclean.New(log, svc.Jobs, autoclean.Options{
		AfterDays: cfg.Server.CleanJobsAfterDays,
		OnSweep:   m.JobsSwept,
	})
}
