package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Persistence backends for the credential store.
const (
	PersistenceMemory   = "memory"
	PersistenceRedis    = "redis"
	PersistencePostgres = "postgres"
)

// Config is the full runtime configuration, assembled from the environment.
type Config struct {
	Server      Server
	Persistence string
	Redis       RedisConfig
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	Pipeline    PipelineConfig
	Ledger      LedgerConfig
	Biometric   BiometricConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	ShutdownTimeout time.Duration
}

// RedisConfig configures the go-redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the database/sql pool. An empty DSN disables Postgres.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// PollInterval drives the credential feed; Postgres has no push channel here.
	PollInterval time.Duration
}

// KafkaConfig configures the audit stream. No brokers disables the stream.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	ClientID   string
	Partitions int32
}

// PipelineConfig holds the registration pipeline timings.
type PipelineConfig struct {
	// SettleDelay separates fingerprinting from shielding.
	SettleDelay time.Duration
	// DisplayHold is how long the registered stage stays visible before reset.
	DisplayHold time.Duration
	// CallTimeout bounds each external call made by the pipeline.
	CallTimeout time.Duration
	AuditBuffer int
}

// LedgerConfig configures the simulated ledger.
type LedgerConfig struct {
	Network         string
	ContractAddress string
	TokenPrefix     string
}

// BiometricConfig configures the circuit breaker around the biometric provider.
type BiometricConfig struct {
	FailureThreshold int
	SuccessThreshold int
}

// FromEnv builds the Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("VOICEID_ADDR", ":8080"),
			JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       getEnv("JWT_ISSUER", "voiceid"),
			ShutdownTimeout: getDuration("VOICEID_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Persistence: strings.ToLower(getEnv("VOICEID_PERSISTENCE", PersistenceMemory)),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			PollInterval:    getDuration("DATABASE_POLL_INTERVAL", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "voiceid.audit"),
			ClientID:   getEnv("KAFKA_CLIENT_ID", "voiceid"),
			Partitions: int32(getInt("KAFKA_AUDIT_PARTITIONS", 3)),
		},
		Pipeline: PipelineConfig{
			SettleDelay: getDuration("VOICEID_SETTLE_DELAY", 2*time.Second),
			DisplayHold: getDuration("VOICEID_DISPLAY_HOLD", 3*time.Second),
			CallTimeout: getDuration("VOICEID_CALL_TIMEOUT", 30*time.Second),
			AuditBuffer: getInt("VOICEID_AUDIT_BUFFER", 256),
		},
		Ledger: LedgerConfig{
			Network:         getEnv("LEDGER_NETWORK", "Solana"),
			ContractAddress: getEnv("LEDGER_CONTRACT_ADDRESS", "VoiceReg1stryProgram11111111111111111111111"),
			TokenPrefix:     getEnv("LEDGER_TOKEN_PREFIX", "SOL"),
		},
		Biometric: BiometricConfig{
			FailureThreshold: getInt("BIOMETRIC_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getInt("BIOMETRIC_SUCCESS_THRESHOLD", 2),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Persistence {
	case PersistenceMemory:
	case PersistenceRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("persistence %q requires REDIS_URL", c.Persistence)
		}
	case PersistencePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("persistence %q requires DATABASE_URL", c.Persistence)
		}
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence)
	}
	if c.Pipeline.SettleDelay < 0 || c.Pipeline.DisplayHold < 0 {
		return fmt.Errorf("pipeline delays must not be negative")
	}
	if c.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("pipeline call timeout must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
