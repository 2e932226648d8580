package config

import (
	"time"
)

type DB struct {
	Url            string `envconfig:"URL"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`
	AutoMigrate    bool   `envconfig:"AUTO_MIGRATE" default:"false"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Jwt *Jwt `envconfig:"JWT"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:""`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"autotransfer:"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// EventBus selects the transport carrying transaction events and schedule ticks.
type EventBus struct {
	Driver       string `envconfig:"DRIVER" default:"memory"`
	RedisURL     string `envconfig:"REDIS_URL" default:""`
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID      string `envconfig:"GROUP_ID" default:"autotransfer"`
	TopicPrefix  string `envconfig:"TOPIC_PREFIX" default:"autotransfer"`
	// DLQRetry is the number of handler attempts before a message is dead-lettered.
	DLQRetry         int           `envconfig:"DLQ_RETRY" default:"3"`
	DLQRetryInterval time.Duration `envconfig:"DLQ_RETRY_INTERVAL" default:"5m"`
	DLQBatchSize     int           `envconfig:"DLQ_BATCH_SIZE" default:"10"`
	BlockTimeout     time.Duration `envconfig:"BLOCK_TIMEOUT" default:"5s"`
	SASLUsername     string        `envconfig:"SASL_USERNAME" default:""`
	SASLPassword     string        `envconfig:"SASL_PASSWORD" default:""`
	TLSEnabled       bool          `envconfig:"TLS_ENABLED" default:"false"`
	TLSCAFile        string        `envconfig:"TLS_CA_FILE" default:""`
	TLSSkipVerify    bool          `envconfig:"TLS_SKIP_VERIFY" default:"false"`
}

type Scheduler struct {
	Enabled      bool          `envconfig:"ENABLED" default:"true"`
	Interval     time.Duration `envconfig:"INTERVAL" default:"2m"`
	PassTimeout  time.Duration `envconfig:"PASS_TIMEOUT" default:"1m"`
	AnchorHour   int           `envconfig:"ANCHOR_HOUR" default:"0"`
	AnchorMinute int           `envconfig:"ANCHOR_MINUTE" default:"5"`
	TimeZone     string        `envconfig:"TIME_ZONE" default:"UTC"`
	MaxMissed    int           `envconfig:"MAX_MISSED" default:"366"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"90s"`
}

// Location resolves TimeZone, falling back to UTC for unknown zones.
func (s *Scheduler) Location() *time.Location {
	if s == nil || s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Evaluator struct {
	Workers        int           `envconfig:"WORKERS" default:"8"`
	PassTimeout    time.Duration `envconfig:"PASS_TIMEOUT" default:"30s"`
	StaleAfter     time.Duration `envconfig:"STALE_AFTER" default:"5m"`
	RecoverEvery   time.Duration `envconfig:"RECOVER_EVERY" default:"5m"`
	RecoverEnabled bool          `envconfig:"RECOVER_ENABLED" default:"true"`
}

// Outbox configures the relay that republishes staged events the bus did
// not accept when they were written.
type Outbox struct {
	Enabled   bool          `envconfig:"ENABLED" default:"true"`
	Interval  time.Duration `envconfig:"INTERVAL" default:"30s"`
	MinAge    time.Duration `envconfig:"MIN_AGE" default:"30s"`
	BatchSize int           `envconfig:"BATCH_SIZE" default:"100"`
}

type Retry struct {
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	InitialInterval time.Duration `envconfig:"INITIAL_INTERVAL" default:"20ms"`
	MaxInterval     time.Duration `envconfig:"MAX_INTERVAL" default:"1s"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[autotransfer]"`
}

type Server struct {
	Scheme string `envconfig:"SCHEME" default:"http"`
	Host   string `envconfig:"HOST" default:"localhost"`
	Port   int    `envconfig:"PORT" default:"3000"`
}

type App struct {
	Env       string     `envconfig:"APP_ENV" default:"development"`
	Server    *Server    `envconfig:"SERVER"`
	Log       *Log       `envconfig:"LOG"`
	DB        *DB        `envconfig:"DATABASE"`
	Auth      *Auth      `envconfig:"AUTH"`
	Redis     *Redis     `envconfig:"REDIS"`
	EventBus  *EventBus  `envconfig:"EVENT_BUS"`
	Scheduler *Scheduler `envconfig:"SCHEDULER"`
	Evaluator *Evaluator `envconfig:"EVALUATOR"`
	Outbox    *Outbox    `envconfig:"OUTBOX"`
	Retry     *Retry     `envconfig:"RETRY"`
	RateLimit *RateLimit `envconfig:"RATE_LIMIT"`
}
