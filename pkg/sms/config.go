package sms

const (
	ProviderTwilio = "twilio"
	ProviderLog    = "log"
)

type Config struct {
	Provider         string `env:"SMS_PROVIDER" envDefault:"log"`
	FromNumber       string `env:"SMS_FROM_NUMBER"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
}
