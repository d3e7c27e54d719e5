package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Database flavors that need different DDL
const (
	FlavorPostgres  = "postgres"
	FlavorCockroach = "cockroach"
)

// Config holds connection settings
type Config struct {
	URL      string // Required: connection string
	Flavor   string // Optional: "postgres" (default) or "cockroach"
	MaxConns int32  // Optional: pool size (default: 10)
}

// Client wraps the pgx connection pool
type Client struct {
	*pgxpool.Pool
	flavor string
	logger *zap.Logger
}

// NewClient creates a pool and verifies the connection
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("database connection string is required")
	}
	flavor := config.Flavor
	if flavor == "" {
		flavor = FlavorPostgres
	}
	if flavor != FlavorPostgres && flavor != FlavorCockroach {
		return nil, fmt.Errorf("unsupported database flavor: %s", flavor)
	}

	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 10
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to database",
		zap.String("flavor", flavor),
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database))

	return &Client{
		Pool:   pool,
		flavor: flavor,
		logger: logger,
	}, nil
}

// Flavor returns the configured database flavor
func (c *Client) Flavor() string {
	return c.flavor
}

// Close closes the pool
func (c *Client) Close() {
	c.Pool.Close()
	c.logger.Info("Disconnected from database")
}
