package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "local_dev_secret"

// Config contains application configuration
type Config struct {
	Env        string
	RunAddress string

	DatabaseURI string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaTopicPrefix string

	JWTSecret string

	LogLevel  string
	LogFormat string

	DefaultCommissionRate float64
	RegistrationFee       float64
	AutoSyncOnApprove     bool

	IntentTTL           time.Duration
	PayoutEncryptionKey string
}

// NewConfig builds the configuration from defaults, an optional CONFIG_FILE,
// .env, environment variables and finally command-line flags.
func NewConfig(args []string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.address", "RUN_ADDRESS")
	_ = v.BindEnv("database.uri", "DATABASE_URI")
	_ = v.BindEnv("redis.addr", "REDIS_ADDRESS", "REDIS_ADDR")

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	// Parse flags
	fs := flag.NewFlagSet("carrental", flag.ContinueOnError)
	runAddress := fs.String("a", "", "Server run address")
	databaseURI := fs.String("d", "", "Database URI")
	redisAddr := fs.String("r", "", "Redis address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Flags win over everything else
	if *runAddress != "" {
		v.Set("server.address", *runAddress)
	}
	if *databaseURI != "" {
		v.Set("database.uri", *databaseURI)
	}
	if *redisAddr != "" {
		v.Set("redis.addr", *redisAddr)
	}

	cfg := &Config{
		Env:                   v.GetString("app.env"),
		RunAddress:            v.GetString("server.address"),
		DatabaseURI:           v.GetString("database.uri"),
		RedisAddr:             v.GetString("redis.addr"),
		RedisPassword:         v.GetString("redis.password"),
		RedisDB:               v.GetInt("redis.db"),
		KafkaEnabled:          v.GetBool("kafka.enabled"),
		KafkaBrokers:          stringList(v, "kafka.brokers"),
		KafkaTopicPrefix:      v.GetString("kafka.topic_prefix"),
		JWTSecret:             v.GetString("auth.jwt_secret"),
		LogLevel:              v.GetString("log.level"),
		LogFormat:             v.GetString("log.format"),
		DefaultCommissionRate: v.GetFloat64("partners.default_commission_rate"),
		RegistrationFee:       v.GetFloat64("partners.registration_fee"),
		AutoSyncOnApprove:     v.GetBool("partners.auto_sync_on_approve"),
		IntentTTL:             v.GetDuration("payments.intent_ttl"),
		PayoutEncryptionKey:   v.GetString("payouts.encryption_key"),
	}

	// the built-in secret is only for a throwaway in-memory dev process
	if cfg.JWTSecret == "" && cfg.Env == "dev" && cfg.DatabaseURI == "" {
		cfg.JWTSecret = devJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic_prefix", "carrental")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("partners.default_commission_rate", 10)
	v.SetDefault("partners.registration_fee", 0)
	v.SetDefault("partners.auto_sync_on_approve", false)
	v.SetDefault("payments.intent_ttl", 15*time.Minute)
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required outside dev or when database.uri is set"))
	}
	if c.DatabaseURI != "" && c.PayoutEncryptionKey == "" {
		errs = append(errs, errors.New("payouts.encryption_key is required when database.uri is set"))
	}
	if c.DefaultCommissionRate < 0 || c.DefaultCommissionRate > 100 {
		errs = append(errs, fmt.Errorf("partners.default_commission_rate must be within [0, 100], got %v", c.DefaultCommissionRate))
	}
	if c.RegistrationFee < 0 {
		errs = append(errs, errors.New("partners.registration_fee must not be negative"))
	}
	if c.IntentTTL <= 0 {
		errs = append(errs, errors.New("payments.intent_ttl must be positive"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// stringList accepts both list values from a config file and
// comma-separated strings from the environment.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
