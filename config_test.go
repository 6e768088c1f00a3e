// Copyright 2024 The Cockroach Authors
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

package cutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "cutil.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
max-load-factor = 0.5
log-level = "warn"
`))
	require.NoError(t, err)
	require.Equal(t, Config{MaxLoadFactor: 0.5, LogLevel: "warn"}, cfg)

	// Omitted keys keep their defaults.
	cfg, err = LoadConfig(writeConfig(t, ``))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
		invalid  bool
	}{
		{"unknown-key", "max-load-factr = 0.5\n", true},
		{"load-factor", "max-load-factor = 1.0\n", true},
		{"negative", "max-load-factor = -0.1\n", true},
		{"log-level", "log-level = \"loud\"\n", true},
		{"syntax", "max-load-factor = \n", false},
		{"type", "max-load-factor = \"high\"\n", false},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, c.contents))
			require.Error(t, err)
			require.Equal(t, c.invalid, errors.Is(err, ErrInvalidOption), err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoadFactor = 0.5
	cfg.LogLevel = "error"
	require.NoError(t, cfg.Validate())

	m, err := NewTable[uint64](8, WithConfig[uint64](cfg))
	require.NoError(t, err)
	require.EqualValues(t, 4, m.growthLimit)
	require.True(t, m.logger.Core().Enabled(zapcore.ErrorLevel))
	require.False(t, m.logger.Core().Enabled(zapcore.WarnLevel))

	// Containers configured with the same level share one logger.
	other, err := NewTable[uint64](8, WithConfig[uint64](cfg))
	require.NoError(t, err)
	require.Same(t, m.logger, other.logger)
	v, err := NewVector[uint32](0, WithConfig[uint32](Config{LogLevel: "ERROR"}))
	require.NoError(t, err)
	require.Same(t, m.logger, v.logger)

	// A zero load factor keeps the default.
	m, err = NewTable[uint64](8, WithConfig[uint64](Config{}))
	require.NoError(t, err)
	require.EqualValues(t, 6, m.growthLimit)

	_, err = NewVector[uint8](0, WithConfig[uint8](Config{LogLevel: "loud"}))
	require.True(t, errors.Is(err, ErrInvalidOption), err)
}
