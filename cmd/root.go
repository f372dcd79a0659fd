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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hexilee/tifs/cfg"
)

const devicePrefix = "tifs:"

var (
	bindErr      error
	unmarshalErr error
	mountConfig  cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "tifs [flags] device mount_point",
	Short: "Mount a TiKV cluster as a POSIX filesystem",
	Long: `TiFS keeps every inode, directory entry and data block of a POSIX
filesystem in a distributed transactional key-value store, so any number of
machines can mount the same filesystem from the same cluster. The device
takes the form tifs:<pd-endpoint>[,<pd-endpoint>...].`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		endpoints, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}
		return runMount(endpoints, mountPoint, &mountConfig)
	},
	SilenceUsage: true,
}

func populateArgs(args []string) (endpoints []string, mountPoint string, err error) {
	device := strings.TrimPrefix(args[0], devicePrefix)
	endpoints = strings.Split(device, ",")

	// Canonicalize the mount point, making it absolute. This is important
	// when daemonizing, since the daemon changes its working directory
	// before running this code again.
	mountPoint, err = filepath.Abs(args[1])
	if err != nil {
		err = fmt.Errorf("canonicalizing mount point: %w", err)
		return
	}
	return
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newDebugCmd())
}

func initConfig() {
	unmarshalErr = viper.Unmarshal(&mountConfig,
		viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
}
