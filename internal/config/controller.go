package config

import "strings"

// ControlConfig holds configuration for the optional Huma control API that
// runs alongside a batch.
type ControlConfig struct {
	BindAddr       string
	PortCandidates []string
	AutoFallback   bool
}

// Enabled reports whether the control API should be started.
func (c *ControlConfig) Enabled() bool {
	return c.BindAddr != ""
}

// LoadControl reads control API configuration from environment variables.
func LoadControl() *ControlConfig {
	return &ControlConfig{
		BindAddr:       getEnvOrDefault("CONTROL_BIND_ADDR", ""),
		PortCandidates: splitList(getEnvOrDefault("CONTROL_PORT_CANDIDATES", "127.0.0.1:8188,127.0.0.1:8189,127.0.0.1:8190")),
		AutoFallback:   getEnvBoolOrDefault("CONTROL_PORT_AUTO_FALLBACK", true),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
