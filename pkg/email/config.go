package email

// Provider names accepted by Config.Provider.
const (
	ProviderPostmark = "postmark"
	ProviderSendGrid = "sendgrid"
	ProviderDev      = "dev"
)

// Config selects and configures the default provider. Tenants may override
// it with their own credentials.
type Config struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"noreply@localhost.dev"`
	SenderName           string `env:"EMAIL_SENDER_NAME"`
	ReplyTo              string `env:"EMAIL_REPLY_TO"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SendGridAPIKey       string `env:"SENDGRID_API_KEY"`
	DevOutputDir         string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}
