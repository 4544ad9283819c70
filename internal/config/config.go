/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the enrollment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	RazorpayAPIBaseURL           string `mapstructure:"RAZORPAY_API_BASE_URL"`
	RazorpayKeyID                string `mapstructure:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret            string `mapstructure:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret        string `mapstructure:"RAZORPAY_WEBHOOK_SECRET"`
	JWTSecret                    string `mapstructure:"JWT_SECRET"`
	InternalAPIKey               string `mapstructure:"INTERNAL_API_KEY"`
	TaxRate                      string `mapstructure:"TAX_RATE"`
	DefaultCurrency              string `mapstructure:"DEFAULT_CURRENCY"`
	EnrollmentExpiryMinutes      int    `mapstructure:"ENROLLMENT_EXPIRY_MINUTES"`
	ExpirySweepBatchSize         int    `mapstructure:"EXPIRY_SWEEP_BATCH_SIZE"`
	EnrollmentRateLimitPerMinute int    `mapstructure:"ENROLLMENT_RATE_LIMIT_PER_MINUTE"`
	PaymentRateLimitPerMinute    int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RAZORPAY_API_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "yogatara:rate_limit")
	viper.SetDefault("TAX_RATE", "0.18")
	viper.SetDefault("DEFAULT_CURRENCY", "INR")
	viper.SetDefault("ENROLLMENT_EXPIRY_MINUTES", 60)
	viper.SetDefault("EXPIRY_SWEEP_BATCH_SIZE", 500)
	viper.SetDefault("ENROLLMENT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "ENROLLMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RAZORPAY_API_BASE_URL")
	_ = viper.BindEnv("RAZORPAY_KEY_ID")
	_ = viper.BindEnv("RAZORPAY_KEY_SECRET")
	_ = viper.BindEnv("RAZORPAY_WEBHOOK_SECRET")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "ENROLLMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("TAX_RATE")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("ENROLLMENT_EXPIRY_MINUTES")
	_ = viper.BindEnv("EXPIRY_SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("ENROLLMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("ENROLLMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "yogatara:rate_limit"
	}
	config.TaxRate = strings.TrimSpace(config.TaxRate)
	if config.TaxRate == "" {
		config.TaxRate = "0.18"
	}
	config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.DefaultCurrency))
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "INR"
	}

	if config.EnrollmentExpiryMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive enrollment expiry configured; using default\" minutes=%d", config.EnrollmentExpiryMinutes)
		config.EnrollmentExpiryMinutes = 60
	}
	if config.ExpirySweepBatchSize <= 0 {
		config.ExpirySweepBatchSize = 500
	}
	if config.EnrollmentRateLimitPerMinute < 0 {
		config.EnrollmentRateLimitPerMinute = 0
	}
	if config.PaymentRateLimitPerMinute < 0 {
		config.PaymentRateLimitPerMinute = 0
	}

	return
}
