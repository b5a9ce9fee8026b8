package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every settings environment variable.
const EnvPrefix = "SEMSYNC"

// Settings is how semsync reaches the server and reports what it does.
// Exactly one of Token or Username/Password authenticates.
type Settings struct {
	ServerURL string        `mapstructure:"server_url" validate:"required,url"`
	Username  string        `mapstructure:"username" validate:"required_with=Password,excluded_with=Token"`
	Password  string        `mapstructure:"password" validate:"required_with=Username,excluded_with=Token"`
	Token     string        `mapstructure:"token" validate:"required_without=Username"`
	ProjectID int           `mapstructure:"project_id" validate:"gte=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`

	StrictNames  bool `mapstructure:"strict_names"`
	RequireAppID bool `mapstructure:"require_app_id"`
	DefaultAppID int  `mapstructure:"default_app_id" validate:"gte=0"`

	LogLevel      string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat     string `mapstructure:"log_format" validate:"oneof=console json"`
	MetricsAddr   string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	TraceExporter string `mapstructure:"trace_exporter" validate:"oneof=none stdout otlp"`
	TraceEndpoint string `mapstructure:"trace_endpoint" validate:"required_if=TraceExporter otlp"`
}

// UsesToken reports whether the settings authenticate with a bearer token.
func (s *Settings) UsesToken() bool {
	return s.Token != ""
}

var settingsDefaults = map[string]any{
	"server_url":     "",
	"username":       "",
	"password":       "",
	"token":          "",
	"project_id":     0,
	"timeout":        "30s",
	"strict_names":   false,
	"require_app_id": false,
	"default_app_id": 0,
	"log_level":      "info",
	"log_format":     "console",
	"metrics_addr":   "",
	"trace_exporter": "none",
	"trace_endpoint": "",
}

// NewViper returns a viper instance with semsync's defaults, environment
// binding and config file search path. configFile, when set, replaces the
// search for semsync.yaml in the working directory and $HOME/.config/semsync.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	for k, def := range settingsDefaults {
		v.SetDefault(k, def)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("semsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/semsync")
	}
	return v
}

// LoadDotEnv loads .env.local then .env from the working directory. Values
// already in the environment win; missing files are not an error.
func LoadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
}

// LoadSettings reads the config file (missing is fine unless it was named
// explicitly), decodes and validates the settings.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := ValidateSettings(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateSettings checks s and reports every failing field by its
// settings key.
func ValidateSettings(s *Settings) error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, settingKey(fe.StructField())+": "+settingRule(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func settingKey(field string) string {
	switch field {
	case "ServerURL":
		return "server_url"
	case "ProjectID":
		return "project_id"
	case "DefaultAppID":
		return "default_app_id"
	case "LogLevel":
		return "log_level"
	case "LogFormat":
		return "log_format"
	case "MetricsAddr":
		return "metrics_addr"
	case "TraceExporter":
		return "trace_exporter"
	case "TraceEndpoint":
		return "trace_endpoint"
	default:
		return strings.ToLower(field)
	}
}

func settingRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless username/password are set"
	case "required_with":
		return "username and password go together"
	case "excluded_with":
		return "cannot be combined with token"
	case "required_if":
		return "is required for the otlp exporter"
	case "oneof":
		return "must be one of " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag()
	}
}
