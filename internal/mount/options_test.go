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

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngineOptions(t *testing.T) {
	opts, err := ParseOptions([]string{"direct_io", "blksize=4k,maxsize=1GiB", "tls=/etc/tifs/tls.toml"})
	require.NoError(t, err)

	assert.True(t, opts.DirectIO)
	assert.Equal(t, uint64(4000), opts.BlkSize)
	assert.Equal(t, uint64(1<<30), opts.MaxSize)
	assert.Equal(t, "/etc/tifs/tls.toml", opts.TLSPath)
	assert.Empty(t, opts.Fuse)
}

func TestParseSizeSuffixes(t *testing.T) {
	testCases := []struct {
		value string
		want  uint64
	}{
		{"blksize=65536", 65536},
		{"blksize=64KiB", 65536},
		{"blksize=4KB", 4000},
		{"blksize=1MiB", 1 << 20},
	}
	for _, tc := range testCases {
		opts, err := ParseOptions([]string{tc.value})
		require.NoError(t, err, tc.value)
		assert.Equal(t, tc.want, opts.BlkSize, tc.value)
	}
}

func TestFlagPassthrough(t *testing.T) {
	opts, err := ParseOptions([]string{"nodev,exec", "dirsync"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"nodev": "", "exec": "", "dirsync": ""}, opts.Fuse)
	assert.False(t, opts.DirectIO)
}

func TestUnknownOptionsPassThrough(t *testing.T) {
	opts, err := ParseOptions([]string{"allow_other", "user_id=1000"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"allow_other": "", "user_id": "1000"}, opts.Fuse)
}

func TestValueRules(t *testing.T) {
	// Flag-only options reject a value.
	_, err := ParseOptions([]string{"dev=1"})
	assert.Error(t, err)
	_, err = ParseOptions([]string{"direct_io=1"})
	assert.Error(t, err)

	// Valued options require one.
	_, err = ParseOptions([]string{"blksize"})
	assert.Error(t, err)
	_, err = ParseOptions([]string{"blksize="})
	assert.Error(t, err)
	_, err = ParseOptions([]string{"blksize=xx"})
	assert.Error(t, err)
	_, err = ParseOptions([]string{"tls"})
	assert.Error(t, err)
	_, err = ParseOptions([]string{"maxsize"})
	assert.Error(t, err)
}

func TestEmptySegmentsIgnored(t *testing.T) {
	opts, err := ParseOptions([]string{"", "nodev,,exec"})
	require.NoError(t, err)
	assert.Len(t, opts.Fuse, 2)
}
