package postgres

import (
	"net"
	"net/url"
	"strconv"
)

// ConnParams holds the connection parameters read from the environment.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// BuildConnString builds a PostgreSQL connection string.
func BuildConnString(p ConnParams) string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:     "/" + p.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if p.User != "" || p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String()
}

// RedactConnString hides credentials for logging.
func RedactConnString(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "***"
	}
	return u.Redacted()
}
