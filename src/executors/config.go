package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"gextrader/src/risk"
)

type Config struct {
	Symbols []string `envconfig:"SYMBOLS" default:"US100"`

	LoopPeriod time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	// CooldownCycles is how many cycles entries stay suspended after a
	// consolidated market reading.
	CooldownCycles int `envconfig:"COOLDOWN_CYCLES" default:"4"`

	BrokerBaseURL string        `envconfig:"BROKER_BASE_URL" default:"http://localhost:8787"`
	BrokerTimeout time.Duration `envconfig:"BROKER_TIMEOUT" default:"10s"`
	// BrokerTokenCR is the bridge auth token, encrypted with the key from
	// BROKER_CREDENTIALS_KEY. Empty means the bridge runs without auth.
	BrokerTokenCR string `envconfig:"BROKER_TOKEN_CR" default:""`
	FeedURL       string `envconfig:"FEED_URL" default:"ws://localhost:8788/exposure"`

	// MagicNumber scopes every order and position query to this trader.
	MagicNumber int64 `envconfig:"MAGIC_NUMBER" default:"862001"`

	BaseVolume    float64 `envconfig:"BASE_VOLUME" default:"1.0"`
	GridLevels    int     `envconfig:"GRID_LEVELS" default:"3"`
	GridOffsetPct float64 `envconfig:"GRID_OFFSET_PCT" default:"0.002"`
	GridSpacePct  float64 `envconfig:"GRID_SPACE_PCT" default:"0.001"`

	OrderRetries int           `envconfig:"ORDER_RETRIES" default:"3"`
	OrderBackoff time.Duration `envconfig:"ORDER_BACKOFF" default:"1s"`

	MaxDailyLoss       float64 `envconfig:"MAX_DAILY_LOSS" default:"-500"`
	DailyProfitGoal    float64 `envconfig:"DAILY_PROFIT_GOAL" default:"1000"`
	MaxOperations      int     `envconfig:"MAX_OPERATIONS" default:"20"`
	MaxOpenPositions   int     `envconfig:"MAX_OPEN_POSITIONS" default:"3"`
	MaxLossPerPosition float64 `envconfig:"MAX_LOSS_PER_POSITION" default:"200"`

	SessionCloseHour    int  `envconfig:"SESSION_CLOSE_HOUR" default:"15"`
	SessionCloseMinute  int  `envconfig:"SESSION_CLOSE_MINUTE" default:"50"`
	EnableSessionSizing bool `envconfig:"ENABLE_SESSION_SIZING" default:"true"`
}

// RiskLimits maps the env-driven limits into the risk layer's shape.
func (c Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxDailyLoss:     decimal.NewFromFloat(c.MaxDailyLoss),
		DailyProfitGoal:  decimal.NewFromFloat(c.DailyProfitGoal),
		MaxOperations:    c.MaxOperations,
		MaxOpenPositions: c.MaxOpenPositions,
	}
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
