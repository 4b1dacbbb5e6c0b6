package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-floor/internal/common/config"

	_ "github.com/lib/pq"
)

// pingTimeout 启动时确认数据库可达的超时
const pingTimeout = 5 * time.Second

// NewPostgresDB 打开 PostgreSQL 连接池并确认可达
// 本服务只在启动时查询一次床位，连接池保持很小
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	db.SetMaxOpenConns(maxConns)
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}
