package database

import (
	"fmt"
	"net/url"

	coreconfig "github.com/m3rciful/gostage/core/config"
)

// Config holds database connection settings shared across bots.
type Config = coreconfig.DatabaseConfig

// DSN returns the lib/pq key/value connection string.
func DSN(cfg Config) string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslMode(cfg),
	)
}

// URL returns the postgres:// connection URL used by golang-migrate.
func URL(cfg Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode(cfg)}}.Encode(),
	}
	return u.String()
}

func sslMode(cfg Config) string {
	if cfg.SSLMode == "" {
		return "disable"
	}
	return cfg.SSLMode
}
