package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"

	"lendfact-backend/pkg/id"
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

	// Accounts are 32-char lowercase hex identifiers.
	OwnerAccount  string
	EngineAccount string

	ProtocolFeeBps uint32

	// Oracle: URL wins when set; otherwise FixedPrice backs a static feed.
	OracleURL        string
	OracleDecimals   uint8
	OracleFixedPrice string

	// Settlement node; empty means in-memory ledgers (dev mode).
	ChainRPCURL string
}

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func Load() *Config {
	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "lendfact"),
		MySQLUser: getenv("MYSQL_USER", "lendfact"),
		MySQLPass: getenv("MYSQL_PASS", "lendfact"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		IdempTTLSecs: 300,

		OwnerAccount:  getenv("OWNER_ACCOUNT", ""),
		EngineAccount: getenv("ENGINE_ACCOUNT", ""),

		ProtocolFeeBps: 100,

		OracleURL:        getenv("ORACLE_URL", ""),
		OracleDecimals:   8,
		OracleFixedPrice: getenv("ORACLE_FIXED_PRICE", "200000000000"), // 2000.00000000

		ChainRPCURL: getenv("CHAIN_RPC_URL", ""),
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
	if v := os.Getenv("PROTOCOL_FEE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.ProtocolFeeBps = uint32(n)
		}
	}
	if v := os.Getenv("ORACLE_DECIMALS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			c.OracleDecimals = uint8(n)
		}
	}
	// The engine's holding account is service-internal, so a fresh one per
	// deployment is fine when none is pinned. The owner account has no safe
	// default and must be configured.
	if c.EngineAccount == "" {
		c.EngineAccount = id.NewAccountID()
	}
	return c
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if !reHex32.MatchString(c.OwnerAccount) {
		return errors.New("OWNER_ACCOUNT must be 32-char lowercase hex")
	}
	if !reHex32.MatchString(c.EngineAccount) {
		return errors.New("ENGINE_ACCOUNT must be 32-char lowercase hex")
	}
	if c.ProtocolFeeBps > 1000 {
		return errors.New("PROTOCOL_FEE_BPS must be at most 1000")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
