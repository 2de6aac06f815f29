package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSNFromURL converts a postgres:// (or postgresql://) connection URL
// into a libpq-style DSN string.
func DSNFromURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("database URL is empty")
	}

	rawURL = strings.Replace(rawURL, "postgresql://", "postgres://", 1)

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" {
		return "", fmt.Errorf("invalid database URL scheme: %s (expected postgres or postgresql)", u.Scheme)
	}

	port := 5432
	if portStr := u.Port(); portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", fmt.Errorf("invalid port in database URL: %w", err)
		}
	}

	user := ""
	password := ""
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}

	dbname := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	sslMode := query.Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	query.Del("sslmode")

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		u.Hostname(), port, user, password, dbname, sslMode,
	)
	for key, values := range query {
		if len(values) > 0 {
			dsn += fmt.Sprintf(" %s=%s", key, values[0])
		}
	}

	return dsn, nil
}
