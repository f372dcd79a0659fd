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

// Package cfg holds the mount command configuration and its flag bindings.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved mount configuration.
type Config struct {
	Foreground bool `mapstructure:"foreground"`

	// Serve marks the re-spawned daemon child; never set by users.
	Serve bool `mapstructure:"serve"`

	// Options collects every repeated -o argument, unparsed.
	Options []string `mapstructure:"o"`

	Logging LoggingConfig `mapstructure:"logging"`

	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig selects destination, format and severity of logs.
type LoggingConfig struct {
	FilePath string      `mapstructure:"file-path"`
	Format   LogFormat   `mapstructure:"format"`
	Severity LogSeverity `mapstructure:"severity"`
}

// TracingConfig selects the OTLP collector endpoint, empty for none.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// BindFlags registers the mount flags and binds them into viper.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.BoolP("foreground", "f", false, "Stay in the foreground after mounting.")
	if err := viper.BindPFlag("foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.Bool("serve", false, "")
	if err := flagSet.MarkHidden("serve"); err != nil {
		return err
	}
	if err := viper.BindPFlag("serve", flagSet.Lookup("serve")); err != nil {
		return err
	}

	flagSet.StringArrayP("o", "o", nil, "Filesystem mount options, comma-separable.")
	if err := viper.BindPFlag("o", flagSet.Lookup("o")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to the log file; stderr when unset.")
	if err := viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Format of the logs: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-severity", "INFO", "Minimum severity of the logs: TRACE, DEBUG, INFO, WARNING, ERROR or OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("tracing", "", "OTLP endpoint to ship traces to.")
	if err := viper.BindPFlag("tracing.endpoint", flagSet.Lookup("tracing")); err != nil {
		return err
	}

	return nil
}
