// Copyright 2024 CloudWeGo Authors
//
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

package filequeue

import "go.uber.org/zap"

// GrowthFunc computes the next file length given the current length and the
// number of bytes that must fit. The default doubles current until it's
// large enough, matching spec §4.4; a caller-supplied GrowthFunc must
// preserve the same invariants (result >= needed, result is a multiple of
// the minimum file length in the common case). The engine clamps the result
// to maxSize; if the clamped result is not larger than current or still
// smaller than needed, the write fails at once with ErrCapacityExceeded
// (the GrowthFunc is not called again).
type GrowthFunc func(current, needed int64) int64

// Config holds the construction-time, non-persisted options for a QueueFile.
// There is no environment variable or config file support: every option is
// set in code by the caller (spec §1/§6 Non-goals).
type Config struct {
	logger     *zap.Logger
	growthFunc GrowthFunc
}

func defaultConfig() Config {
	return Config{
		logger:     zap.NewNop(),
		growthFunc: defaultGrowthFunc,
	}
}

func defaultGrowthFunc(current, needed int64) int64 {
	next := current
	for next < needed {
		next *= 2
	}
	return next
}

// Option configures a QueueFile at Open time.
type Option func(*Config)

// WithLogger attaches a structured logger used for Debug-level growth/shrink
// diagnostics and Error-level corruption reports. Defaults to a no-op
// logger; no log line ever carries payload bytes, only metadata (spec §7).
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGrowthFunc overrides the default doubling growth policy of spec §4.4.
func WithGrowthFunc(fn GrowthFunc) Option {
	return func(c *Config) {
		if fn != nil {
			c.growthFunc = fn
		}
	}
}
