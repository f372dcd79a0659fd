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
	"os/signal"
	"strings"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/kardianos/osext"
	"golang.org/x/net/context"

	"github.com/hexilee/tifs/cfg"
	"github.com/hexilee/tifs/internal/logger"
	"github.com/hexilee/tifs/internal/monitor"
	"github.com/hexilee/tifs/internal/mount"
	"github.com/hexilee/tifs/internal/perms"
	"github.com/hexilee/tifs/internal/store"
	"github.com/hexilee/tifs/internal/tifs"
)

const (
	// SuccessfulMountMessage is printed by the parent once the daemon
	// signals a successful mount.
	SuccessfulMountMessage = "File system has been successfully mounted."

	// UnsuccessfulMountMessagePrefix prefixes mount failures.
	UnsuccessfulMountMessagePrefix = "Error while mounting tifs"
)

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	// Unmount when the signal is received; retry until the kernel lets go.
	go func() {
		for {
			<-signalChan
			logger.Info("Received SIGINT, attempting to unmount...")

			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

func runMount(endpoints []string, mountPoint string, config *cfg.Config) (err error) {
	logger.SetLogFormat(string(config.Logging.Format))
	logger.SetLogSeverity(string(config.Logging.Severity))

	// If we haven't been asked to run in foreground mode, run a daemon with
	// the internal --serve flag set and wait for it to mount. The daemon
	// inherits our stdout/stderr through pipes until it signals the
	// outcome.
	if !config.Foreground && !config.Serve {
		var path string
		path, err = osext.Executable()
		if err != nil {
			return fmt.Errorf("osext.Executable: %w", err)
		}

		args := append([]string{"--serve"}, os.Args[1:]...)
		args[len(args)-1] = mountPoint

		env := []string{
			fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		}
		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			env = append(env, fmt.Sprintf("HOME=%s", home))
		}

		if err = daemonize.Run(path, args, env, os.Stdout); err != nil {
			return fmt.Errorf("daemonize.Run: %w", err)
		}
		logger.Infof(SuccessfulMountMessage)
		return nil
	}

	if config.Logging.FilePath != "" {
		if err = logger.InitLogFile(config.Logging.FilePath,
			string(config.Logging.Format), string(config.Logging.Severity)); err != nil {
			return fmt.Errorf("init log file: %w", err)
		}
	}

	ctx := context.Background()
	if config.Tracing.Endpoint != "" {
		shutdown, traceErr := monitor.EnableOTLPTraceExporter(ctx, config.Tracing.Endpoint)
		if traceErr != nil {
			logger.Warnf("failed to enable trace exporter: %v", traceErr)
		} else {
			defer func() {
				if err := shutdown(ctx); err != nil {
					logger.Warnf("trace exporter shutdown: %v", err)
				}
			}()
		}
	}

	mfs, err := mountFS(ctx, endpoints, mountPoint, config)

	// Tell the daemonize parent how it went, then either bail or serve.
	if config.Serve {
		if err != nil {
			if signalErr := daemonize.SignalOutcome(err); signalErr != nil {
				logger.Errorf("Failed to signal error to parent process: %v", signalErr)
			}
		} else {
			logger.Info(SuccessfulMountMessage)
			if signalErr := daemonize.SignalOutcome(nil); signalErr != nil {
				logger.Errorf("Failed to signal success to parent process: %v", signalErr)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", UnsuccessfulMountMessagePrefix, err)
	}
	if config.Foreground {
		logger.Info(SuccessfulMountMessage)
	}

	registerSIGINTHandler(mountPoint)

	if err = mfs.Join(ctx); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}
	return nil
}

// mountFS connects to the cluster, builds the engine and mounts it.
func mountFS(ctx context.Context, endpoints []string, mountPoint string, config *cfg.Config) (mfs *fuse.MountedFileSystem, err error) {
	opts, err := mount.ParseOptions(config.Options)
	if err != nil {
		return nil, fmt.Errorf("parsing mount options: %w", err)
	}

	security := resolveSecurity(opts.TLSPath)

	logger.Infof("Connecting to pd endpoints: %v", endpoints)
	kv, err := store.NewTiKVStore(endpoints, security)
	if err != nil {
		return nil, err
	}

	engine := tifs.NewTiFS(kv, timeutil.RealClock(), tifs.Config{
		BlockSize: opts.BlkSize,
		MaxSize:   opts.MaxSize,
		DirectIO:  opts.DirectIO,
	})

	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		return nil, fmt.Errorf("perms.MyUserAndGroup: %w", err)
	}

	server, err := tifs.NewServer(ctx, engine, tifs.ServerConfig{Uid: uid, Gid: gid})
	if err != nil {
		return nil, fmt.Errorf("tifs.NewServer: %w", err)
	}

	fsName := devicePrefix + strings.Join(endpoints, ",")
	logger.Infof("Mounting file system %q...", fsName)

	mountCfg := &fuse.MountConfig{
		FSName:     fsName,
		Subtype:    "tifs",
		VolumeName: "tifs",
		Options:    opts.Fuse,
		// Writes commit to the store before the reply; caching them back
		// would break cross-mount consistency.
		DisableWritebackCaching: true,
		EnableReaddirplus:       true,
	}
	if config.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.NewLegacyLogger(logger.LevelError, "fuse: ")
	}
	if config.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ")
	}

	mfs, err = fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	return mfs, nil
}

// resolveSecurity loads the TLS config from the tls mount option, falling
// back to ~/.tifs/tls.toml. TLS is used only when all three files exist.
func resolveSecurity(tlsPath string) store.Security {
	path := tlsPath
	if path == "" {
		path = cfg.DefaultTLSPath()
		if path == "" {
			return store.Security{}
		}
		if _, err := os.Stat(path); err != nil {
			return store.Security{}
		}
	}

	tlsCfg, err := cfg.LoadTLSConfig(path)
	if err != nil {
		logger.Warnf("ignoring tls config: %v", err)
		return store.Security{}
	}
	if !tlsCfg.ExistAll() {
		logger.Warnf("tls config %q incomplete, connecting without TLS", path)
		return store.Security{}
	}
	return store.Security{
		CAPath:   tlsCfg.CAPath,
		CertPath: tlsCfg.CertPath,
		KeyPath:  tlsCfg.KeyPath,
	}
}
