package utils

import (
	"fmt"
	"net/url"

	"github.com/CytonicMC/Cyparty/config"
)

// NatsUrl builds the NATS connection URL from the configured credentials.
// Credentials are left out when no username is set.
func NatsUrl(cfg config.Config) string {
	u := url.URL{
		Scheme: "nats",
		Host:   fmt.Sprintf("%s:%s", cfg.NatsHostname, cfg.NatsPort),
	}
	if cfg.NatsUsername != "" {
		u.User = url.UserPassword(cfg.NatsUsername, cfg.NatsPassword)
	}
	return u.String()
}
