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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSeverityUnmarshal(t *testing.T) {
	var s LogSeverity
	require.NoError(t, s.UnmarshalText([]byte("debug")))
	assert.Equal(t, DebugLogSeverity, s)

	require.NoError(t, s.UnmarshalText([]byte("WARNING")))
	assert.Equal(t, WarningLogSeverity, s)

	assert.Error(t, s.UnmarshalText([]byte("loud")))
}

func TestLogSeverityRank(t *testing.T) {
	assert.Less(t, TraceLogSeverity.Rank(), DebugLogSeverity.Rank())
	assert.Less(t, ErrorLogSeverity.Rank(), OffLogSeverity.Rank())
	assert.Equal(t, -1, LogSeverity("bogus").Rank())
}

func TestLogFormatUnmarshal(t *testing.T) {
	var f LogFormat
	require.NoError(t, f.UnmarshalText([]byte("JSON")))
	assert.Equal(t, LogFormat("json"), f)
	assert.Error(t, f.UnmarshalText([]byte("xml")))
}

func TestLoadTLSConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.toml")
	content := `ca-path = "/certs/ca.pem"
cert-path = "/certs/client.pem"
key-path = "/certs/client-key.pem"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadTLSConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/certs/ca.pem", cfg.CAPath)
	assert.Equal(t, "/certs/client.pem", cfg.CertPath)
	assert.Equal(t, "/certs/client-key.pem", cfg.KeyPath)

	// The referenced files do not exist, so TLS must not be used.
	assert.False(t, cfg.ExistAll())
}

func TestTLSConfigExistAll(t *testing.T) {
	dir := t.TempDir()
	mk := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("pem"), 0o600))
		return path
	}

	cfg := TLSConfig{CAPath: mk("ca.pem"), CertPath: mk("cert.pem"), KeyPath: mk("key.pem")}
	assert.True(t, cfg.ExistAll())

	cfg.KeyPath = filepath.Join(dir, "missing.pem")
	assert.False(t, cfg.ExistAll())

	assert.False(t, (&TLSConfig{}).ExistAll())
}
