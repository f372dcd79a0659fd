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

// Package mount parses the repeated "-o" mount options into the engine
// options and the passthrough set handed to the fuse bridge.
package mount

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Options is the parsed form of every "-o" argument.
type Options struct {
	// DirectIO forces the direct-IO reply flag on every open.
	DirectIO bool

	// BlkSize is the block size in bytes; zero when not given.
	BlkSize uint64

	// MaxSize caps the filesystem size in bytes; zero when not given.
	MaxSize uint64

	// TLSPath points at the TLS config file; empty when not given.
	TLSPath string

	// Fuse holds the flag passthroughs and every unknown option, forwarded
	// opaquely to the bridge.
	Fuse map[string]string
}

// flagOptions are passed through to the bridge and reject a value.
var flagOptions = map[string]bool{
	"dev":     true,
	"nodev":   true,
	"suid":    true,
	"nosuid":  true,
	"ro":      true,
	"rw":      true,
	"exec":    true,
	"noexec":  true,
	"dirsync": true,
}

// ParseOptions splits each argument on commas and folds every option into
// dst. Engine options are consumed; everything else passes through.
func ParseOptions(args []string) (*Options, error) {
	dst := &Options{Fuse: make(map[string]string)}
	for _, arg := range args {
		for _, opt := range strings.Split(arg, ",") {
			if opt == "" {
				continue
			}
			if err := parseOne(dst, opt); err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

func parseOne(dst *Options, opt string) error {
	name, value, hasValue := strings.Cut(opt, "=")

	switch {
	case flagOptions[name]:
		if hasValue {
			return fmt.Errorf("option %s does not accept an argument", name)
		}
		dst.Fuse[name] = ""

	case name == "direct_io":
		if hasValue {
			return fmt.Errorf("option %s does not accept an argument", name)
		}
		dst.DirectIO = true

	case name == "blksize":
		size, err := parseSize(name, value, hasValue)
		if err != nil {
			return err
		}
		dst.BlkSize = size

	case name == "maxsize":
		size, err := parseSize(name, value, hasValue)
		if err != nil {
			return err
		}
		dst.MaxSize = size

	case name == "tls":
		if !hasValue || value == "" {
			return fmt.Errorf("argument for %s is not supplied", name)
		}
		dst.TLSPath = value

	default:
		// Unknown options pass through opaquely.
		if hasValue {
			dst.Fuse[name] = value
		} else {
			dst.Fuse[name] = ""
		}
	}
	return nil
}

// parseSize parses a byte size with SI/IEC suffixes (4k, 64KiB, 1G, ...).
func parseSize(name, value string, hasValue bool) (uint64, error) {
	if !hasValue || value == "" {
		return 0, fmt.Errorf("argument for %s is not supplied", name)
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("fail to parse %s(%s): %w", name, value, err)
	}
	return size, nil
}
