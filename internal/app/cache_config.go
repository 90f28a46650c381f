package app

import (
	"strings"

	"github.com/charlesng35/sessiond/internal/cache"
	"github.com/charlesng35/sessiond/internal/database"
	"github.com/charlesng35/sessiond/internal/events"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// ConnectionConfig converts the database section into database.Config.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// PublisherConfig converts the AMQP section into the events package representation.
func (c AMQPConfig) PublisherConfig() events.AMQPConfig {
	return events.AMQPConfig{
		URL:       strings.TrimSpace(c.URL),
		Exchange:  strings.TrimSpace(c.Exchange),
		Timeout:   c.Timeout,
		QueueSize: c.QueueSize,
	}
}
