package config

import (
	"fmt"
	"strings"
)

// MaxRequestSkewSeconds bounds how stale a signed request may be.
var MaxRequestSkewSeconds = uint64(3600)

var knownModules = map[string]struct{}{
	"offers": {},
	"escrow": {},
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.RequestSkewSeconds == 0 || c.RequestSkewSeconds > MaxRequestSkewSeconds {
		return fmt.Errorf("config: RequestSkewSeconds must be within 1..%d", MaxRequestSkewSeconds)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RateLimitPerMinute must not be negative")
	}
	if c.RateLimitPerMinute > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RateLimitBurst must be positive when rate limiting is enabled")
	}
	for _, module := range c.PausedModules {
		name := strings.ToLower(strings.TrimSpace(module))
		if _, ok := knownModules[name]; !ok {
			return fmt.Errorf("config: unknown paused module %q", module)
		}
	}
	return nil
}
