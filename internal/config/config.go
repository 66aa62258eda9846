// Package config provides configuration structures and validation for the safety core.
// It handles environment-based configuration for the ops API, databases, the payment
// event stream, and the tuning knobs of the ledger, control gate and audit log.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration (e.g., HTTP server, databases,
// message queues) and is validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Ledger      LedgerConfig
	Control     ControlConfig
	Audit       AuditConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	PaymentTopic      string // Verified gateway events published by the webhook receiver
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	MaxRetryBackoff   time.Duration // Upper bound between redeliveries of a failing message
	DLQTopic          string        // Dead letters for undecodable or invalid payment events
	AuditDLQTopic     string        // Audit events that could not be stored
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	AuditCollection string
}

// LedgerConfig contains wallet ledger policy
type LedgerConfig struct {
	OverdraftFloor     int64 // Lowest balance an administrative override may reach; must be <= 0
	ReconcileBatchSize int
}

// ControlConfig contains kill-switch evaluation settings
type ControlConfig struct {
	RefreshInterval time.Duration // How often the flag snapshot is reloaded
	WriteRetries    int           // Optimistic write attempts before giving up
}

// AuditConfig contains audit retry queue settings
type AuditConfig struct {
	RetryQueueSize   int
	RetryInterval    time.Duration
	RetryBatchSize   int
	MaxRetryAttempts int
	WriteTimeout     time.Duration
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.PaymentTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYMENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.MaxRetryBackoff <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_RETRY_BACKOFF must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}
	if c.Kafka.AuditDLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_AUDIT_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	if c.MongoDB.AuditCollection == "" {
		validationErrors = append(validationErrors, "MONGO_AUDIT_COLLECTION is required")
	}

	// Validate Ledger config
	if c.Ledger.OverdraftFloor > 0 {
		validationErrors = append(validationErrors, "LEDGER_OVERDRAFT_FLOOR must be less than or equal to 0")
	}
	if c.Ledger.ReconcileBatchSize <= 0 {
		validationErrors = append(validationErrors, "LEDGER_RECONCILE_BATCH_SIZE must be greater than 0")
	}

	// Validate Control config
	if c.Control.RefreshInterval <= 0 {
		validationErrors = append(validationErrors, "CONTROL_REFRESH_INTERVAL must be greater than 0")
	}
	if c.Control.WriteRetries <= 0 {
		validationErrors = append(validationErrors, "CONTROL_WRITE_RETRIES must be greater than 0")
	}

	// Validate Audit config
	if c.Audit.RetryQueueSize <= 0 {
		validationErrors = append(validationErrors, "AUDIT_RETRY_QUEUE_SIZE must be greater than 0")
	}
	if c.Audit.RetryInterval <= 0 {
		validationErrors = append(validationErrors, "AUDIT_RETRY_INTERVAL must be greater than 0")
	}
	if c.Audit.RetryBatchSize <= 0 {
		validationErrors = append(validationErrors, "AUDIT_RETRY_BATCH_SIZE must be greater than 0")
	}
	if c.Audit.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "AUDIT_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Audit.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "AUDIT_WRITE_TIMEOUT must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
