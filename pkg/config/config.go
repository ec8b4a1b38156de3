package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Forwarder struct {
		DeliveryTimeout time.Duration `mapstructure:"DELIVERY_TIMEOUT"`
		MaxAttempts     int           `mapstructure:"MAX_ATTEMPTS"`
		Concurrency     int           `mapstructure:"CONCURRENCY"`
		Queue           string        `mapstructure:"QUEUE"`
	} `mapstructure:"FORWARDER"`
	Signature struct {
		Algorithm  string        `mapstructure:"ALGORITHM"`
		SkewWindow time.Duration `mapstructure:"SKEW_WINDOW"`
		ReplayTTL  time.Duration `mapstructure:"REPLAY_TTL"`
	} `mapstructure:"SIGNATURE"`
	Callback struct {
		RateLimit       int           `mapstructure:"RATE_LIMIT"`
		RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	} `mapstructure:"CALLBACK"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)

	v.SetDefault("FORWARDER.DELIVERY_TIMEOUT", 30*time.Second)
	v.SetDefault("FORWARDER.MAX_ATTEMPTS", 6)
	v.SetDefault("FORWARDER.CONCURRENCY", 10)
	v.SetDefault("FORWARDER.QUEUE", "default")

	v.SetDefault("SIGNATURE.ALGORITHM", "sha256")
	v.SetDefault("SIGNATURE.SKEW_WINDOW", 300*time.Second)
	v.SetDefault("SIGNATURE.REPLAY_TTL", 5*time.Minute)

	v.SetDefault("CALLBACK.RATE_LIMIT", 120)
	v.SetDefault("CALLBACK.RATE_LIMIT_WINDOW", time.Minute)
}
