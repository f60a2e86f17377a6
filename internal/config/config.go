package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// AuthSigningSecret signs and verifies bearer tokens. Credential
	// verification is an external collaborator; this module issues tokens
	// (operator provisioning) and verifies them on every authenticated route.
	AuthSigningSecret string
	AuthTokenTTLSecs  int

	// OperatorCreationSecret gates the out-of-band operator-provisioning path.
	OperatorCreationSecret string

	// EncryptionKeyHex is a 32-byte AES-256-GCM key, hex-encoded, used to
	// encrypt Account.NationalIDEncrypted at rest.
	EncryptionKeyHex string

	// AllowedOrigins is the CORS/websocket-origin allow-list.
	AllowedOrigins []string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func Load() *Config {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "loanledger"),
		MySQLUser: getenv("MYSQL_USER", "loanledger"),
		MySQLPass: getenv("MYSQL_PASS", "loanledger"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		IdempTTLSecs: 86400,

		AuthSigningSecret:      getenv("AUTH_SIGNING_SECRET", "dev-signing-secret-change-me"),
		AuthTokenTTLSecs:       3600,
		OperatorCreationSecret: getenv("OPERATOR_CREATION_SECRET", "dev-operator-secret-change-me"),
		EncryptionKeyHex:       getenv("ENCRYPTION_KEY_HEX", ""),
		AllowedOrigins:         splitCSV(getenv("ALLOWED_ORIGINS", "*")),
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("IDEMPOTENCY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IdempTTLSecs = n
		}
	}
	if v := os.Getenv("AUTH_TOKEN_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AuthTokenTTLSecs = n
		}
	}
	return c
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.AuthSigningSecret == "" {
		return errors.New("missing AUTH_SIGNING_SECRET")
	}
	if c.OperatorCreationSecret == "" {
		return errors.New("missing OPERATOR_CREATION_SECRET")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
