package database

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
)

// dialector resolves the gorm dialector for the normalised driver name.
func dialector(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		dsn, err := buildSQLiteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		dsn, err := buildPostgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql", "mariadb":
		dsn, err := buildMySQLDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func buildSQLiteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared&_foreign_keys=1", nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", nil
}

// buildPostgresDSN renders a libpq keyword/value string. Values containing
// spaces or quotes are single-quoted.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres requires user and database name")
	}

	params := []string{
		"host=" + pgValue(orDefault(cfg.Host, "localhost")),
		"port=" + strconv.Itoa(orDefaultPort(cfg.Port, defaultPostgresPort)),
		"user=" + pgValue(cfg.User),
		"dbname=" + pgValue(cfg.Name),
	}
	if cfg.Password != "" {
		params = append(params, "password="+pgValue(cfg.Password))
	}

	options := withOptions(map[string]string{"sslmode": "disable"}, cfg.Options)
	for _, key := range slices.Sorted(maps.Keys(options)) {
		params = append(params, key+"="+pgValue(options[key]))
	}
	return strings.Join(params, " "), nil
}

func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + escaped + "'"
}

// buildMySQLDSN formats the DSN through the driver's own config so that
// credentials and parameters are escaped the way the driver parses them.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql requires user and database name")
	}

	dc := mysqldriver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(orDefault(cfg.Host, "127.0.0.1"), strconv.Itoa(orDefaultPort(cfg.Port, defaultMySQLPort)))
	dc.DBName = cfg.Name
	// Session windows are stored as DATETIME; scan them into time.Time.
	dc.ParseTime = true
	dc.Params = withOptions(map[string]string{"charset": "utf8mb4"}, cfg.Options)

	return dc.FormatDSN(), nil
}

func withOptions(defaults, overrides map[string]string) map[string]string {
	out := maps.Clone(defaults)
	maps.Copy(out, overrides)
	return out
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func orDefaultPort(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
