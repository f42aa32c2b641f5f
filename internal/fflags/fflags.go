package fflags

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// FFlags answers feature flag questions from the environment. Flags are
// registered at startup; a flag can be driven by an env var or by an
// arbitrary function when the answer depends on runtime state.
type FFlags struct {
	logger *zap.SugaredLogger
	mu     sync.RWMutex
	flags  map[string]func() bool
}

func NewFFlags(logger *zap.SugaredLogger) *FFlags {
	return &FFlags{
		logger: logger,
		flags:  map[string]func() bool{},
	}
}

func (f *FFlags) RegisterFlag(name string, fn func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[name] = fn
}

// RegisterEnvFlag registers a flag backed by a boolean env var. An
// unset or unparsable value falls back to defaultValue.
func (f *FFlags) RegisterEnvFlag(name string, env string, defaultValue bool) {
	f.RegisterFlag(name, func() bool {
		if value, err := strconv.ParseBool(os.Getenv(env)); err == nil {
			return value
		}
		return defaultValue
	})
}

// ListFlags returns all registered flags and their current values.
func (f *FFlags) ListFlags() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := map[string]bool{}
	for name, fn := range f.flags {
		result[name] = fn()
	}
	return result
}

// GetFlag returns whether the named feature is enabled. Asking about an
// unregistered flag is an error, not false.
func (f *FFlags) GetFlag(flag string) (bool, error) {
	f.mu.RLock()
	fn, ok := f.flags[flag]
	f.mu.RUnlock()
	if !ok {
		f.logger.Errorf("invalid feature flag name: %s", flag)
		return false, fmt.Errorf("invalid feature flag name: %s", flag)
	}
	return fn(), nil
}
