package gate

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewProbe returns the probe for the configured database type. Postgres is
// queried; other types are checked with a TCP connect.
func NewProbe(cfg *Config) (Probe, error) {
	switch strings.ToLower(cfg.DBType) {
	case "postgres", "postgresql":
		return PostgresProbe(cfg)
	default:
		return TCPProbe(cfg.DBHost, cfg.DBPort, cfg.ProbeTimeout), nil
	}
}

// PostgresProbe connects and runs SELECT 1. A host starting with "/" is a
// Unix socket directory.
func PostgresProbe(cfg *Config) (Probe, error) {
	connCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	connCfg.Host = cfg.DBHost
	connCfg.Port = uint16(cfg.DBPort)
	connCfg.Database = cfg.DBName
	connCfg.User = cfg.DBUser
	connCfg.Password = cfg.DBPassword
	connCfg.ConnectTimeout = cfg.ProbeTimeout
	if strings.HasPrefix(cfg.DBHost, "/") {
		connCfg.TLSConfig = nil
		connCfg.Fallbacks = nil
	} else {
		if connCfg.TLSConfig != nil {
			connCfg.TLSConfig.ServerName = cfg.DBHost
		}
		for _, fb := range connCfg.Fallbacks {
			fb.Host, fb.Port = connCfg.Host, connCfg.Port
			if fb.TLSConfig != nil {
				fb.TLSConfig.ServerName = cfg.DBHost
			}
		}
	}

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()

		db := stdlib.OpenDB(*connCfg)
		defer db.Close()

		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("postgres %s: %w", cfg.DBHost, err)
		}
		return nil
	}, nil
}

// TCPProbe dials host:port. A host starting with "/" is dialed as a Unix
// socket path.
func TCPProbe(host string, port int, timeout time.Duration) Probe {
	network, addr := "tcp", net.JoinHostPort(host, strconv.Itoa(port))
	if strings.HasPrefix(host, "/") {
		network, addr = "unix", host
	}

	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
