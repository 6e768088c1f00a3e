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
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Config holds the tunables shared by every container built with WithConfig.
// It mirrors the functional options so that deployments can keep them in a
// TOML file:
//
//	max-load-factor = 0.5
//	log-level = "debug"
type Config struct {
	// MaxLoadFactor bounds count/capacity before a Table grows. Zero means
	// the default of 0.75.
	MaxLoadFactor float64 `toml:"max-load-factor"`
	// LogLevel enables a production zap logger at the given level for
	// containers that were not given one with WithLogger. Empty disables
	// logging.
	LogLevel string `toml:"log-level"`
}

// DefaultConfig returns the configuration containers use without options.
func DefaultConfig() Config {
	return Config{MaxLoadFactor: defaultMaxLoadFactor}
}

// Validate checks that every field of c is in range.
func (c Config) Validate() error {
	if c.MaxLoadFactor != 0 && !(c.MaxLoadFactor > 0 && c.MaxLoadFactor < 1) {
		return errors.Wrapf(ErrInvalidOption, "max-load-factor %v not in (0, 1)", c.MaxLoadFactor)
	}
	if c.LogLevel != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return errors.Mark(errors.Wrapf(err, "log-level %q", c.LogLevel), ErrInvalidOption)
		}
	}
	return nil
}

// LoadConfig reads a Config from the TOML file at path. Fields absent from
// the file keep their DefaultConfig values; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loading config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.Wrapf(ErrInvalidOption, "unknown config keys in %s: %s",
			path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
