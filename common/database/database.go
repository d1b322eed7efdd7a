// Package database opens the ClickHouse connection behind the analytics
// mirror of the master table.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultMaxExecutionTime = 60
)

// Options configures the mirror connection. DSN is either a bare address
// list ("ch1:9000,ch2:9000") or a clickhouse:// URL; only its hosts are used.
type Options struct {
	DSN             string
	Username        string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration

	// AsyncInsert lets the server buffer the per-run inserts instead of
	// creating a part for each one. Inserts still wait for the flush.
	AsyncInsert bool
}

type Database struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

// New opens a native ClickHouse connection and pings it.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Database, error) {
	chOpts, err := clickhouseOptions(opts)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", strings.Join(chOpts.Addr, ","), err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", strings.Join(chOpts.Addr, ","), err)
	}

	logger.Info("connected to clickhouse",
		zap.Strings("addr", chOpts.Addr),
		zap.String("database", opts.Database),
		zap.Bool("async_insert", opts.AsyncInsert))

	return &Database{conn: conn, logger: logger}, nil
}

func clickhouseOptions(opts Options) (*clickhouse.Options, error) {
	addrs, err := ParseAddrs(opts.DSN)
	if err != nil {
		return nil, err
	}

	settings := clickhouse.Settings{
		"max_execution_time": defaultMaxExecutionTime,
	}
	if opts.AsyncInsert {
		settings["async_insert"] = 1
		settings["wait_for_async_insert"] = 1
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	return &clickhouse.Options{
		Protocol: clickhouse.Native,
		Addr:     addrs,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: settings,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     dialTimeout,
		MaxOpenConns:    opts.MaxOpenConns,
		MaxIdleConns:    opts.MaxIdleConns,
		ConnMaxLifetime: opts.ConnMaxLifetime,
	}, nil
}

// ParseAddrs extracts the host:port list from dsn, dropping any scheme,
// credentials, database path and query. Hosts without a port get 9000.
func ParseAddrs(dsn string) ([]string, error) {
	hosts := strings.TrimSpace(dsn)
	if i := strings.Index(hosts, "://"); i >= 0 {
		hosts = hosts[i+3:]
	}
	if i := strings.IndexAny(hosts, "/?"); i >= 0 {
		hosts = hosts[:i]
	}
	if i := strings.LastIndex(hosts, "@"); i >= 0 {
		hosts = hosts[i+1:]
	}

	var addrs []string
	for _, host := range strings.Split(hosts, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if !strings.Contains(host, ":") {
			host += ":9000"
		}
		addrs = append(addrs, host)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("clickhouse dsn %q has no hosts", dsn)
	}
	return addrs, nil
}

func (db *Database) Close() error {
	return db.conn.Close()
}

func (db *Database) Conn() clickhouse.Conn {
	return db.conn
}
