package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration read once at startup.
type Server struct {
	Addr            string
	AdminToken      string
	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Chain    ChainConfig
	Kafka    KafkaConfig
	Claim    ClaimConfig
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the optional verified-amount cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ChainConfig configures the ledger RPC used to verify transactions.
type ChainConfig struct {
	RPCURL           string
	Timeout          time.Duration
	NativeCoinType   string
	CacheTTL         time.Duration
	FailureThreshold int
	ProbeInterval    time.Duration
}

// KafkaConfig configures the outbox relay. No brokers means events are
// relayed to the log instead.
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	RelayInterval  time.Duration
	RelayBatchSize int
}

type ClaimConfig struct {
	RejectZeroValue bool
	VerifyTimeout   time.Duration
}

const (
	DefaultRPCURL         = "https://fullnode.testnet.sui.io"
	DefaultNativeCoinType = "0x2::sui::SUI"
	DefaultTopic          = "geoscore.claims"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	e := &envReader{}
	cfg := Server{
		Addr:            e.str("GEOSCORE_ADDR", ":8080"),
		AdminToken:      e.str("ADMIN_TOKEN", ""),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       e.duration("DB_TX_TIMEOUT", 5*time.Second),
			AutoMigrate:     e.boolean("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:           e.str("SUI_RPC_URL", DefaultRPCURL),
			Timeout:          e.duration("CHAIN_RPC_TIMEOUT", 10*time.Second),
			NativeCoinType:   e.str("CHAIN_NATIVE_COIN_TYPE", DefaultNativeCoinType),
			CacheTTL:         e.duration("CHAIN_CACHE_TTL", 24*time.Hour),
			FailureThreshold: e.integer("CHAIN_BREAKER_FAILURES", 5),
			ProbeInterval:    e.duration("CHAIN_BREAKER_PROBE_INTERVAL", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        e.list("KAFKA_BROKERS"),
			Topic:          e.str("KAFKA_TOPIC", DefaultTopic),
			RelayInterval:  e.duration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatchSize: e.integer("OUTBOX_RELAY_BATCH", 100),
		},
		Claim: ClaimConfig{
			RejectZeroValue: e.boolean("CLAIM_REJECT_ZERO_VALUE", false),
			VerifyTimeout:   e.duration("CLAIM_VERIFY_TIMEOUT", 15*time.Second),
		},
	}
	if e.err != nil {
		return Server{}, e.err
	}
	return cfg, nil
}

// envReader keeps the first parse error so FromEnv reports one clear failure.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.fail(key, v)
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.fail(key, v)
		return def
	}
	return d
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return b
}

func (e *envReader) list(key string) []string {
	v := e.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid value %q for %s", value, key)
	}
}
