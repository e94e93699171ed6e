package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

const attemptsTableDDL = `
	CREATE TABLE IF NOT EXISTS investment_attempts (
		attempt_id     String,
		user_id        String,
		wallet_address String,
		pool_id        String,
		status         LowCardinality(String),
		token_a_amount UInt64,
		token_b_amount UInt64,
		min_lp_tokens  UInt64,
		slippage_bps   UInt16,
		tx_signature   String,
		failure_code   LowCardinality(String),
		timestamp      DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (pool_id, timestamp)
`

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("Connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

// EnsureSchema creates the attempts table if it does not exist.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, attemptsTableDDL); err != nil {
		return fmt.Errorf("failed to create investment_attempts: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertAttempt(ctx context.Context, ev *models.AttemptEvent) error {
	query := `
		INSERT INTO investment_attempts (
			attempt_id, user_id, wallet_address, pool_id, status,
			token_a_amount, token_b_amount, min_lp_tokens, slippage_bps,
			tx_signature, failure_code, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		ev.AttemptID,
		ev.UserID,
		ev.WalletAddress,
		ev.PoolID,
		string(ev.Status),
		ev.TokenAAmount,
		ev.TokenBAmount,
		ev.MinLPTokens,
		ev.SlippageBps,
		ev.TxSignature,
		ev.FailureCode,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// CountByStatus aggregates stored attempts for one pool.
func (c *ClickHouseStore) CountByStatus(ctx context.Context, poolID string) (map[models.AttemptStatus]uint64, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT status, count() FROM investment_attempts WHERE pool_id = ? GROUP BY status`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	out := map[models.AttemptStatus]uint64{}
	for rows.Next() {
		var (
			status string
			n      uint64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.AttemptStatus(status)] = n
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
