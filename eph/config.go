package eph

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// DefaultCheckpointInterval is the maximum age of an unpersisted position before it is flushed
	DefaultCheckpointInterval = time.Minute

	// DefaultCheckpointMessageCount is the number of completions that triggers a flush
	DefaultCheckpointMessageCount = 1000

	// DefaultFlushMaxAttempts is the number of attempts made for a flush while the partition is active
	DefaultFlushMaxAttempts = 5

	// DefaultFlushTimeout bounds a single checkpoint write
	DefaultFlushTimeout = 10 * time.Second

	// DefaultDrainTimeout bounds the whole close-time drain, including waiting for an in-flight flush
	DefaultDrainTimeout = 5 * time.Second

	// DefaultDrainMaxAttempts is the number of attempts made for the close-time drain
	DefaultDrainMaxAttempts = 3

	// DefaultTickInterval is how often open partitions are scanned for an elapsed checkpoint interval
	DefaultTickInterval = time.Second

	envPrefix = "EPH_"
)

type (
	// Config holds the checkpoint batching and flushing settings of an EventProcessorHost
	Config struct {
		CheckpointInterval     time.Duration `mapstructure:"CHECKPOINT_INTERVAL"`
		CheckpointMessageCount int           `mapstructure:"CHECKPOINT_MESSAGE_COUNT"`
		FlushMaxAttempts       int           `mapstructure:"FLUSH_MAX_ATTEMPTS"`
		FlushTimeout           time.Duration `mapstructure:"FLUSH_TIMEOUT"`
		FlushBackoffMin        time.Duration `mapstructure:"FLUSH_BACKOFF_MIN"`
		FlushBackoffMax        time.Duration `mapstructure:"FLUSH_BACKOFF_MAX"`
		DrainTimeout           time.Duration `mapstructure:"DRAIN_TIMEOUT"`
		DrainMaxAttempts       int           `mapstructure:"DRAIN_MAX_ATTEMPTS"`
		TickInterval           time.Duration `mapstructure:"TICK_INTERVAL"`
	}
)

// DefaultConfig returns the configuration used when no options are supplied
func DefaultConfig() Config {
	return Config{
		CheckpointInterval:     DefaultCheckpointInterval,
		CheckpointMessageCount: DefaultCheckpointMessageCount,
		FlushMaxAttempts:       DefaultFlushMaxAttempts,
		FlushTimeout:           DefaultFlushTimeout,
		FlushBackoffMin:        100 * time.Millisecond,
		FlushBackoffMax:        5 * time.Second,
		DrainTimeout:           DefaultDrainTimeout,
		DrainMaxAttempts:       DefaultDrainMaxAttempts,
		TickInterval:           DefaultTickInterval,
	}
}

// Validate reports every setting that is out of range
func (c Config) Validate() error {
	var err error
	if c.CheckpointInterval <= 0 {
		err = multierr.Append(err, errors.Errorf("checkpoint interval must be positive, got %v", c.CheckpointInterval))
	}
	if c.CheckpointMessageCount < 1 || c.CheckpointMessageCount > math.MaxUint16 {
		err = multierr.Append(err, errors.Errorf("checkpoint message count must be between 1 and %d, got %d", math.MaxUint16, c.CheckpointMessageCount))
	}
	if c.FlushMaxAttempts < 1 {
		err = multierr.Append(err, errors.Errorf("flush max attempts must be at least 1, got %d", c.FlushMaxAttempts))
	}
	if c.FlushTimeout <= 0 {
		err = multierr.Append(err, errors.Errorf("flush timeout must be positive, got %v", c.FlushTimeout))
	}
	if c.FlushBackoffMin <= 0 || c.FlushBackoffMax < c.FlushBackoffMin {
		err = multierr.Append(err, errors.Errorf("flush backoff must satisfy 0 < min <= max, got min %v max %v", c.FlushBackoffMin, c.FlushBackoffMax))
	}
	if c.DrainTimeout <= 0 {
		err = multierr.Append(err, errors.Errorf("drain timeout must be positive, got %v", c.DrainTimeout))
	}
	if c.DrainMaxAttempts < 1 {
		err = multierr.Append(err, errors.Errorf("drain max attempts must be at least 1, got %d", c.DrainMaxAttempts))
	}
	if c.TickInterval <= 0 {
		err = multierr.Append(err, errors.Errorf("tick interval must be positive, got %v", c.TickInterval))
	}
	return err
}

// ConfigFromEnvironment builds a Config from the defaults overlaid with EPH_* settings read from the given dotenv
// files and then from the process environment. Process environment values win over file values.
//
// Durations use time.ParseDuration syntax, for example EPH_CHECKPOINT_INTERVAL=30s.
func ConfigFromEnvironment(files ...string) (Config, error) {
	settings := make(map[string]interface{})
	if len(files) > 0 {
		fromFiles, err := godotenv.Read(files...)
		if err != nil {
			return Config{}, errors.Wrap(err, "failed to read configuration files")
		}
		collectSettings(settings, fromFiles)
	}

	fromEnv := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			fromEnv[kv[:idx]] = kv[idx+1:]
		}
	}
	collectSettings(settings, fromEnv)

	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}

	if err := decoder.Decode(settings); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func collectSettings(into map[string]interface{}, from map[string]string) {
	for key, value := range from {
		if strings.HasPrefix(key, envPrefix) {
			into[strings.TrimPrefix(key, envPrefix)] = value
		}
	}
}
