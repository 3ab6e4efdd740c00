package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	types "github.com/yungbote/classr/internal/domain"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// RedisSink appends one stream entry per row. Each batch is sent as a MULTI/EXEC pipeline.
type RedisSink struct {
	client *redis.Client
	stream string
}

func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %v", types.ErrIO, cfg.Addr, err)
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "classr:results"
	}
	return &RedisSink{client: client, stream: stream}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Close() error { return s.client.Close() }

func (s *RedisSink) Begin(context.Context) (Tx, error) {
	return &redisTx{sink: s}, nil
}

type redisTx struct {
	sink *RedisSink
	sent int
}

func (t *redisTx) Insert(ctx context.Context, rows []Row) error {
	pipe := t.sink.client.TxPipeline()
	for _, row := range rows {
		values := make(map[string]interface{}, len(row.Fields)+3)
		for k, v := range row.Fields {
			values[k] = v
		}
		values["job_uid"] = row.JobUID
		values["classifier_uid"] = row.ClassifierUID
		values["row_index"] = strconv.Itoa(row.Index)
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: t.sink.stream, Values: values})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis xadd: %v", types.ErrIO, err)
	}
	t.sent += len(rows)
	return nil
}

// Commit is a no-op: every batch is already applied atomically.
func (t *redisTx) Commit(context.Context) error { return nil }

func (t *redisTx) Rollback(context.Context) error { return nil }
