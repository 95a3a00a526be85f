package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BrokerCRKey is the base64-encoded 32-byte key protecting stored broker
	// credentials. Override in every non-dev deployment.
	BrokerCRKey string `envconfig:"BROKER_CREDENTIALS_KEY" default:"c2VjcmV0LWtleS0zMi1ieXRlcy1sb25nLWZvci1kZXY="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
