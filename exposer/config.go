// Copyright 2026 The Promkit Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exposer

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config bundles the options for constructing an Exposer. The zero value is
// not usable; use DefaultConfig as a starting point.
type Config struct {
	// ListenAddress is the host:port the exposer binds to. The host part
	// may be empty to bind all interfaces, and the port may be 0 to let
	// the kernel pick a free one (useful in tests).
	ListenAddress string `yaml:"listen_address"`

	// TelemetryPath is the HTTP path serving the exposition, typically
	// "/metrics".
	TelemetryPath string `yaml:"telemetry_path"`

	// ReadTimeout and WriteTimeout bound a single scrape exchange. Zero
	// means no timeout.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the configuration used when fields are left unset:
// listen on 127.0.0.1:9090 and serve on /metrics.
func DefaultConfig() Config {
	return Config{
		ListenAddress: "127.0.0.1:9090",
		TelemetryPath: "/metrics",
	}
}

// LoadConfig reads a YAML config file from path. Unset fields are filled from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems. It is called by
// New, so callers constructing a Config in code do not need to call it
// themselves.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("%w: empty listen address", ErrConfig)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("%w: listen address %q: %v", ErrConfig, c.ListenAddress, err)
	}
	if c.TelemetryPath == "" || c.TelemetryPath[0] != '/' {
		return fmt.Errorf("%w: telemetry path %q must start with %q", ErrConfig, c.TelemetryPath, "/")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrConfig)
	}
	return nil
}
