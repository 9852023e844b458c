package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver string
	DBDSN    string

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AllocatorMaxAttempts int
	TableCapacityMin     int
	TableCapacityMax     int

	QRBaseURL          string
	QRProvisionTimeout time.Duration

	AMQPURL      string
	AMQPExchange string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("ALLOCATOR_MAX_ATTEMPTS", 5)
	v.SetDefault("TABLE_CAPACITY_MIN", 1)
	v.SetDefault("TABLE_CAPACITY_MAX", 20)
	v.SetDefault("QR_BASE_URL", "http://localhost:8080/order")
	v.SetDefault("QR_PROVISION_TIMEOUT", "5s")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "table.events")
}

// Load reads .env (if present), an optional config.yml and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	v.AutomaticEnv()

	return &Config{
		Port:                 v.GetString("PORT"),
		GinMode:              v.GetString("GIN_MODE"),
		DBDriver:             strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:                v.GetString("DB_DSN"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		CORSAllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitRPS:         v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:       v.GetInt("RATE_LIMIT_BURST"),
		AllocatorMaxAttempts: v.GetInt("ALLOCATOR_MAX_ATTEMPTS"),
		TableCapacityMin:     v.GetInt("TABLE_CAPACITY_MIN"),
		TableCapacityMax:     v.GetInt("TABLE_CAPACITY_MAX"),
		QRBaseURL:            v.GetString("QR_BASE_URL"),
		QRProvisionTimeout:   v.GetDuration("QR_PROVISION_TIMEOUT"),
		AMQPURL:              v.GetString("AMQP_URL"),
		AMQPExchange:         v.GetString("AMQP_EXCHANGE"),
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
