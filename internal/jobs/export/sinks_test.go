package export

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/classr/internal/platform/logger"
)

func TestRedisSinkExport(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := "classr:test:" + time.Now().UTC().Format("20060102150405.000000000")
	sink, err := NewRedisSink(ctx, RedisConfig{Addr: addr, Stream: stream})
	require.NoError(t, err)
	defer sink.Close()
	defer sink.client.Del(context.Background(), stream)

	n, err := NewExporter(logger.Nop(), sink, nil, 2).Export(ctx, "j1", "c1", writeOutput(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := sink.client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "j1", entries[0].Values["job_uid"])
	assert.Equal(t, "HW", entries[2].Values["class"])
}

func TestPostgresSinkExport(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := NewPostgresSink(PostgresConfig{DSN: dsn}, 2)
	require.NoError(t, err)
	defer sink.Close()

	job := "job-" + time.Now().UTC().Format("150405.000000000")
	defer sink.db.Table(sink.table).Where("job_uid = ?", job).Delete(&ResultRow{})

	e := NewExporter(logger.Nop(), sink, nil, 2)
	out := writeOutput(t, 3)
	n, err := e.Export(ctx, job, "c1", out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var count int64
	require.NoError(t, sink.db.Table(sink.table).Where("job_uid = ?", job).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	_, err = e.Export(ctx, job, "c1", out)
	require.Error(t, err, "re-export of the same job must hit the primary key")
}

func TestAMQPSinkExport(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exchange := "classr.test." + time.Now().UTC().Format("20060102150405.000000000")
	sink, err := NewAMQPSink(AMQPConfig{URL: url, Exchange: exchange, RoutingKey: "classified"})
	require.NoError(t, err)
	defer sink.Close()

	ch, err := sink.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "classified", exchange, false, nil))
	defer ch.ExchangeDelete(exchange, false, false)

	n, err := NewExporter(logger.Nop(), sink, nil, 2).Export(ctx, "j1", "c1", writeOutput(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)
	var got []amqpMessage
	for len(got) < 3 {
		select {
		case d := <-deliveries:
			var m amqpMessage
			require.NoError(t, json.Unmarshal(d.Body, &m))
			got = append(got, m)
		case <-ctx.Done():
			t.Fatalf("received %d of 3 messages", len(got))
		}
	}
	assert.Equal(t, "j1", got[0].JobUID)
	assert.Equal(t, "HW", got[2].Fields["class"])
}
