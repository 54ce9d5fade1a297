package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "TEAMSTATUS"
	defaultDatabasePath    = "teamstatus.db"
	defaultLogLevel        = "info"
	defaultTokenIssuer     = "teamstatus"
	defaultTokenAudience   = "teamstatus"
	defaultSweepInterval   = time.Minute
	defaultFanoutMode      = "none"
	defaultFeedbackProject = "$teamstatus#feedback"
)

// AppConfig captures runtime configuration for the core daemon.
type AppConfig struct {
	DatabasePath    string
	LogLevel        string
	SweepInterval   time.Duration
	TokenIssuer     string
	TokenAudience   string
	PrivateKeyPath  string
	PublicKeyPath   string
	FeedbackProject string
	FanoutMode      string
	SNSAccessKey    string
	SNSSecretKey    string
	SNSRegion       string
	SNSTopicARN     string
	WebhookURL      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.sweep_interval", defaultSweepInterval)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAudience)
	configViper.SetDefault("onboarding.feedback_project", defaultFeedbackProject)
	configViper.SetDefault("fanout.mode", defaultFanoutMode)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SweepInterval:   configViper.GetDuration("database.sweep_interval"),
		TokenIssuer:     configViper.GetString("token.issuer"),
		TokenAudience:   configViper.GetString("token.audience"),
		PrivateKeyPath:  configViper.GetString("token.private_key_path"),
		PublicKeyPath:   configViper.GetString("token.public_key_path"),
		FeedbackProject: configViper.GetString("onboarding.feedback_project"),
		FanoutMode:      configViper.GetString("fanout.mode"),
		SNSAccessKey:    configViper.GetString("fanout.sns.access_key"),
		SNSSecretKey:    configViper.GetString("fanout.sns.secret_key"),
		SNSRegion:       configViper.GetString("fanout.sns.region"),
		SNSTopicARN:     configViper.GetString("fanout.sns.topic_arn"),
		WebhookURL:      configViper.GetString("fanout.webhook.url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("database.sweep_interval must be positive")
	}
	if strings.TrimSpace(c.PrivateKeyPath) == "" {
		return fmt.Errorf("token.private_key_path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.FanoutMode)) {
	case "none", "":
	case "sns":
		if c.SNSAccessKey == "" || c.SNSSecretKey == "" || c.SNSRegion == "" || c.SNSTopicARN == "" {
			return fmt.Errorf("fanout.sns.* settings are required when fanout.mode is sns")
		}
	case "webhook":
		if strings.TrimSpace(c.WebhookURL) == "" {
			return fmt.Errorf("fanout.webhook.url is required when fanout.mode is webhook")
		}
	default:
		return fmt.Errorf("fanout.mode must be one of none, sns, webhook")
	}
	return nil
}
