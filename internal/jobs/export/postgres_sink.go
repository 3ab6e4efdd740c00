package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/yungbote/classr/internal/domain"
)

type PostgresConfig struct {
	DSN   string
	Table string
}

const DefaultTable = "classification_results"

// ResultRow is the exported table row.
type ResultRow struct {
	JobUID        string            `gorm:"column:job_uid;primaryKey"`
	RowIndex      int               `gorm:"column:row_index;primaryKey"`
	ClassifierUID string            `gorm:"column:classifier_uid;index"`
	Fields        datatypes.JSONMap `gorm:"column:fields;type:jsonb"`
}

// PostgresSink writes every job inside one transaction.
type PostgresSink struct {
	db        *gorm.DB
	table     string
	batchSize int
}

func NewPostgresSink(cfg PostgresConfig, batchSize int) (*PostgresSink, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", types.ErrIO, err)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := db.Table(table).AutoMigrate(&ResultRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate results table: %v", types.ErrIO, err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresSink{db: db, table: table, batchSize: batchSize}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresSink) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("%w: begin: %v", types.ErrIO, tx.Error)
	}
	return &postgresTx{tx: tx, table: s.table, batchSize: s.batchSize}, nil
}

type postgresTx struct {
	tx        *gorm.DB
	table     string
	batchSize int
}

func (t *postgresTx) Insert(ctx context.Context, rows []Row) error {
	out := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		fields := make(datatypes.JSONMap, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		out = append(out, ResultRow{JobUID: r.JobUID, RowIndex: r.Index, ClassifierUID: r.ClassifierUID, Fields: fields})
	}
	if err := t.tx.WithContext(ctx).Table(t.table).CreateInBatches(&out, t.batchSize).Error; err != nil {
		return mapPgError(err)
	}
	return nil
}

func (t *postgresTx) Commit(context.Context) error {
	if err := t.tx.Commit().Error; err != nil {
		return mapPgError(err)
	}
	return nil
}

func (t *postgresTx) Rollback(context.Context) error {
	err := t.tx.Rollback().Error
	if errors.Is(err, gorm.ErrInvalidTransaction) {
		return nil
	}
	return err
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("results already exported: %w", types.ErrAlreadyExists)
	}
	return fmt.Errorf("%w: postgres: %v", types.ErrIO, err)
}
