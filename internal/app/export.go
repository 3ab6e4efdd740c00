package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/classr/internal/config"
	"github.com/yungbote/classr/internal/jobs/export"
	"github.com/yungbote/classr/internal/platform/logger"
)

// wireExport returns no sink and no exporter when export is disabled.
func wireExport(ctx context.Context, log *logger.Logger, cfg config.ExportConfig) (export.Sink, *export.Exporter, error) {
	var (
		sink export.Sink
		err  error
	)
	switch cfg.Type {
	case "redis":
		sink, err = export.NewRedisSink(ctx, export.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})
	case "postgres":
		sink, err = export.NewPostgresSink(export.PostgresConfig{
			DSN:   cfg.PostgresDSN,
			Table: cfg.PostgresTable,
		}, cfg.BatchSize)
	case "amqp":
		sink, err = export.NewAMQPSink(export.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRouting,
		})
	default:
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init %s export sink: %w", cfg.Type, err)
	}
	log.Info("results export enabled", "sink", sink.Name(), "batch_size", cfg.BatchSize)

	// One gate for the whole process: exports never interleave.
	gate := semaphore.NewWeighted(1)
	return sink, export.NewExporter(log, sink, gate, cfg.BatchSize), nil
}
