package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Log        LogConfig
	Statistics StatisticsConfig
}

type AppConfig struct {
	Port string
	Env  string
}

type DBConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

// StatisticsConfig controls the compliance statistics engine.
type StatisticsConfig struct {
	MinYear          int
	MaxYear          int
	CacheTTL         time.Duration
	RebuildWorkers   int
	RebuildOnStartup bool
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STATS_MIN_YEAR", 2000)
	viper.SetDefault("STATS_MAX_YEAR", 2100)
	viper.SetDefault("STATS_REBUILD_WORKERS", 4)

	// .env is optional when everything comes from the environment
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("STATS_CACHE_TTL"))
	if err != nil {
		cacheTTL = time.Hour
	}

	config := &Config{
		App: AppConfig{
			Port: viper.GetString("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		DB: DBConfig{
			Host:        viper.GetString("DB_HOST"),
			Port:        viper.GetString("DB_PORT"),
			User:        viper.GetString("DB_USER"),
			Password:    viper.GetString("DB_PASSWORD"),
			Name:        viper.GetString("DB_NAME"),
			AutoMigrate: viper.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Statistics: StatisticsConfig{
			MinYear:          viper.GetInt("STATS_MIN_YEAR"),
			MaxYear:          viper.GetInt("STATS_MAX_YEAR"),
			CacheTTL:         cacheTTL,
			RebuildWorkers:   viper.GetInt("STATS_REBUILD_WORKERS"),
			RebuildOnStartup: viper.GetBool("STATS_REBUILD_ON_STARTUP"),
		},
	}

	return config, nil
}
