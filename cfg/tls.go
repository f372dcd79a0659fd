// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// TLSConfig is the TOML file pointing at the cluster TLS material.
type TLSConfig struct {
	CAPath   string `mapstructure:"ca-path"`
	CertPath string `mapstructure:"cert-path"`
	KeyPath  string `mapstructure:"key-path"`
}

// ExistAll reports whether all three files are present. TLS is only used
// when they are.
func (c *TLSConfig) ExistAll() bool {
	for _, path := range []string{c.CAPath, c.CertPath, c.KeyPath} {
		if path == "" {
			return false
		}
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// DefaultTLSPath is consulted when no tls mount option is given.
func DefaultTLSPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tifs", "tls.toml")
}

// LoadTLSConfig reads the TOML file at path.
func LoadTLSConfig(path string) (*TLSConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading tls config %q: %w", path, err)
	}
	var cfg TLSConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing tls config %q: %w", path, err)
	}
	return &cfg, nil
}
