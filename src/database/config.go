package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EnableDB bool `envconfig:"ENABLE_DB" default:"true"`
	// Postgres URL or a sqlite path like "sqlite:///var/lib/gextrader/trader.db".
	DatabaseURL  string `envconfig:"DATABASE_URL" default:"sqlite://gextrader.db"`
	GormLogLevel int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
