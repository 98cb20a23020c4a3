package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type DB struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
}

type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
}

type Store struct {
	Driver         string `env:"STORE_DRIVER" envDefault:"postgres"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

// Kafka is optional; an empty broker list disables the Kafka sink.
type Kafka struct {
	Brokers string `env:"KAFKA_BROKERS"`
	Topic   string `env:"KAFKA_AUDIT_TOPIC" envDefault:"inventory.audit-events"`
}

// Redis is optional; without a URL events only reach subscribers of this instance.
type Redis struct {
	URL     string `env:"REDIS_URL"`
	Channel string `env:"REDIS_AUDIT_CHANNEL" envDefault:"inventory:audit-events"`
}

type Realtime struct {
	SendBuffer int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	KeepAlive  time.Duration `env:"WS_KEEPALIVE" envDefault:"30s"`
}

type Audit struct {
	// WebOrigins are substrings of the Origin header that mark a request as coming from
	// the web client.
	WebOrigins []string `env:"AUDIT_WEB_ORIGINS" envDefault:"localhost,127.0.0.1" envSeparator:","`
	TopActors  int      `env:"AUDIT_TOP_ACTORS" envDefault:"10"`
}

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	DB       DB
	HTTP     HTTP
	Auth     Auth
	Store    Store
	Kafka    Kafka
	Redis    Redis
	Realtime Realtime
	Audit    Audit
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}
