package iris

import (
	"errors"
	"time"

	"github.com/creasty/defaults"
)

// Config contains the configuration required to initialize the Iris client.
type Config struct {
	// BaseURL is the attestation service endpoint, e.g. the Circle sandbox.
	BaseURL string

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `default:"15s"`
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return defaults.Set(c)
}
