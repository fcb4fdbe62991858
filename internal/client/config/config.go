package config

import "time"

// Config holds runtime settings for the zipbuilder CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the zipbuilder gRPC endpoint.
//   - PollInterval: delay between status polls while waiting for a job.
//   - WaitTimeout: how long to wait for a job to finish; zero waits forever.
type Config struct {
	ServerEndpointAddr string
	PollInterval       time.Duration
	WaitTimeout        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.PollInterval = time.Second
	c.WaitTimeout = 10 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
