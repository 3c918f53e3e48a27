package redis

import "time"

type Config struct {
	// ConnectionURL in the form redis://:password@localhost:6379/0.
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	// CommandTimeout bounds rate limit round trips; a slow Redis should fail
	// open quickly rather than stall notification creation.
	CommandTimeout time.Duration `env:"REDIS_COMMAND_TIMEOUT" envDefault:"500ms"`
}
