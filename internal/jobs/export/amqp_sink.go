package export

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	types "github.com/yungbote/classr/internal/domain"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPSink publishes one JSON message per row inside an AMQP channel
// transaction, so a job's rows reach the exchange only on Commit.
type AMQPSink struct {
	conn       *amqp.Connection
	exchange   string
	routingKey string
}

type amqpMessage struct {
	JobUID        string            `json:"job_uid"`
	ClassifierUID string            `json:"classifier_uid"`
	RowIndex      int               `json:"row_index"`
	Fields        map[string]string `json:"fields"`
}

func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: amqp dial: %v", types.ErrIO, err)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "classr.results"
	}
	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = "classified"
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: amqp channel: %v", types.ErrIO, err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare exchange %s: %v", types.ErrIO, exchange, err)
	}
	return &AMQPSink{conn: conn, exchange: exchange, routingKey: routingKey}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Close() error { return s.conn.Close() }

func (s *AMQPSink) Begin(context.Context) (Tx, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: amqp channel: %v", types.ErrIO, err)
	}
	if err := ch.Tx(); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: amqp tx select: %v", types.ErrIO, err)
	}
	return &amqpTx{sink: s, ch: ch}, nil
}

type amqpTx struct {
	sink *AMQPSink
	ch   *amqp.Channel
}

func (t *amqpTx) Insert(ctx context.Context, rows []Row) error {
	for _, row := range rows {
		body, err := json.Marshal(amqpMessage{
			JobUID:        row.JobUID,
			ClassifierUID: row.ClassifierUID,
			RowIndex:      row.Index,
			Fields:        row.Fields,
		})
		if err != nil {
			return err
		}
		if err := t.ch.PublishWithContext(ctx, t.sink.exchange, t.sink.routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s:%d", row.JobUID, row.Index),
			Body:         body,
		}); err != nil {
			return fmt.Errorf("%w: amqp publish: %v", types.ErrIO, err)
		}
	}
	return nil
}

func (t *amqpTx) Commit(context.Context) error {
	defer t.ch.Close()
	if err := t.ch.TxCommit(); err != nil {
		return fmt.Errorf("%w: amqp tx commit: %v", types.ErrIO, err)
	}
	return nil
}

func (t *amqpTx) Rollback(context.Context) error {
	defer t.ch.Close()
	return t.ch.TxRollback()
}
