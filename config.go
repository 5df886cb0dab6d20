/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package batchstore

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syntrodata/batchstore/errors"
	"github.com/syntrodata/batchstore/executor"
	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

// Options are the process-wide defaults applied to every batch operation.
// Per-call options override them.
type Options struct {
	// Parallel enables the pooled execution path. When false every
	// operation runs its chunks strictly in order.
	Parallel bool

	// Concurrency bounds in-flight chunk calls under the pooled path.
	// Zero defers to the store's recommendation.
	Concurrency int

	// RateLimit caps dispatched storage calls per second. Zero means
	// unlimited.
	RateLimit float64

	// Introspector supplies model metadata. Nil defaults to the
	// process-wide model registry.
	Introspector registry.Introspector
}

// configContext is the single piece of persistent state: the configured
// client plus resolved defaults. Everything else is per-operation.
type configContext struct {
	client  storage.Client
	opts    Options
	limiter *executor.RateLimiter
}

var (
	configMu sync.RWMutex
	config   *configContext
)

// Configure installs the storage client and defaults for all subsequent
// batch operations. Reconfiguring replaces the previous context.
func Configure(client storage.Client, opts Options) error {
	if client == nil {
		return errors.NewInvalidArgumentError("client", "storage client is required")
	}
	if opts.Introspector == nil {
		opts.Introspector = registry.Default{}
	}

	configMu.Lock()
	defer configMu.Unlock()
	config = &configContext{
		client:  client,
		opts:    opts,
		limiter: executor.NewRateLimiter(opts.RateLimit),
	}
	log.Printf("INFO: batchstore configured for provider %s (parallel=%v, concurrency=%d, rateLimit=%v)",
		client.Capabilities().Provider, opts.Parallel, opts.Concurrency, opts.RateLimit)
	return nil
}

// ResetConfiguration clears the configured context. Subsequent operations
// fail fast until Configure is called again.
func ResetConfiguration() {
	configMu.Lock()
	defer configMu.Unlock()
	config = nil
}

// IsConfigured reports whether a storage client is installed.
func IsConfigured() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config != nil
}

func currentConfig() (*configContext, error) {
	configMu.RLock()
	defer configMu.RUnlock()
	if config == nil {
		return nil, errors.ErrNotConfigured
	}
	return config, nil
}

// LoadOptionsFromEnv builds Options from the environment, loading a local
// .env file first when present. Recognized variables: BATCHSTORE_PARALLEL,
// BATCHSTORE_CONCURRENCY, BATCHSTORE_RATE_LIMIT.
func LoadOptionsFromEnv() Options {
	_ = godotenv.Load()

	var opts Options
	if v := os.Getenv("BATCHSTORE_PARALLEL"); v != "" {
		parallel, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("WARN: invalid BATCHSTORE_PARALLEL value %q, ignoring", v)
		} else {
			opts.Parallel = parallel
		}
	}
	if v := os.Getenv("BATCHSTORE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("WARN: invalid BATCHSTORE_CONCURRENCY value %q, ignoring", v)
		} else {
			opts.Concurrency = n
		}
	}
	if v := os.Getenv("BATCHSTORE_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil || limit < 0 {
			log.Printf("WARN: invalid BATCHSTORE_RATE_LIMIT value %q, ignoring", v)
		} else {
			opts.RateLimit = limit
		}
	}
	return opts
}

type optionsFile struct {
	Parallel    bool    `yaml:"parallel"`
	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rateLimit"`
}

// LoadOptionsFile reads Options from a YAML file:
//
//	parallel: true
//	concurrency: 8
//	rateLimit: 50
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var f optionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Options{}, err
	}
	return Options{
		Parallel:    f.Parallel,
		Concurrency: f.Concurrency,
		RateLimit:   f.RateLimit,
	}, nil
}
