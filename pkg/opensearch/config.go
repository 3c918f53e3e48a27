package opensearch

type Config struct {
	Addresses     []string `env:"OPENSEARCH_ADDRESSES,required"`
	Username      string   `env:"OPENSEARCH_USERNAME"`
	Password      string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries    int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry  bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`
	DeliveryIndex string   `env:"OPENSEARCH_DELIVERY_INDEX" envDefault:"notifykit-deliveries"`
}
