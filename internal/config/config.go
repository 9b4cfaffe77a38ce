package config

import (
	"strings"

	"github.com/jrsteele09/go-api-dashboard/internal/errors"
)

type Config interface {
	EnvConfig
	IdentityConfig
	CacheConfig
}

type mainConfig struct {
	EnvVars
	Identity
	Cache
}

func New() Config {
	return mainConfig{}
}

// Validate reports every required value that is missing. A failure here is a
// deployment problem and is meant to stop the process at startup.
func Validate(c Config) error {
	var missing []string
	if c.GetBackendBaseURL() == "" {
		missing = append(missing, backendURLVar)
	}
	if !c.UseFakeIdentity() {
		if c.GetIssuerURL() == "" {
			missing = append(missing, issuerURLVar)
		}
		if c.GetClientID() == "" {
			missing = append(missing, clientIDVar)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(errors.ErrMisconfigured, "missing required environment variables %s", strings.Join(missing, ", "))
	}
	return nil
}
