package app

import (
	"github.com/yungbote/classr/internal/config"
	"github.com/yungbote/classr/internal/data/db"
	apphttp "github.com/yungbote/classr/internal/http"
	httpH "github.com/yungbote/classr/internal/http/handlers"
	"github.com/yungbote/classr/internal/observability"
	"github.com/yungbote/classr/internal/platform/logger"
)

type Handlers struct {
	RPC      *httpH.RPCHandler
	Resource *httpH.ResourceHandler
	Job      *httpH.JobHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg *config.Config, store *db.SQLiteService, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		RPC: httpH.NewRPCHandler(httpH.RPCHandlerDeps{
			Log:         log,
			Classifiers: svc.Classifiers,
			Jobs:        svc.Jobs,
			Resources:   svc.Resources,
		}),
		Resource: httpH.NewResourceHandler(httpH.ResourceHandlerDeps{
			Log:           log,
			Resources:     svc.Resources,
			TempDir:       svc.Paths.TempDir,
			AllowDownload: cfg.Server.EnableResourceDownload,
		}),
		Job: httpH.NewJobHandler(httpH.JobHandlerDeps{
			Log:         log,
			Jobs:        svc.Jobs,
			Classifiers: svc.Classifiers,
			TempDir:     svc.Paths.TempDir,
		}),
		Health: httpH.NewHealthHandler(store),
	}
}

func wireServer(log *logger.Logger, cfg *config.Config, store *db.SQLiteService, svc Services, m *observability.Metrics) *apphttp.Server {
	h := wireHandlers(log, cfg, store, svc)
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		RPCHandler:      h.RPC,
		ResourceHandler: h.Resource,
		JobHandler:      h.Job,
		HealthHandler:   h.Health,
		APIKey:          cfg.Server.APIKey,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxUploadBytes:  int64(cfg.Server.MaxUploadSize.Bytes()),
		Tracing:         cfg.Otel.Enabled,
		Metrics:         m,
	}, apphttp.ServerOptions{
		Addr:    cfg.Server.Addr,
		TLSCert: cfg.Server.TLSCert,
		TLSKey:  cfg.Server.TLSKey,
	})
}
