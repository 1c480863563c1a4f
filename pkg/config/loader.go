package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type cache struct {
	mu     sync.Mutex
	values map[reflect.Type]any
}

var (
	parsed  = &cache{values: make(map[reflect.Type]any)}
	dotenv  sync.Once
	envFile = ".env"
)

// LoadEnv reads the given .env files into the process environment without
// overriding variables that are already set. Missing files are an error here,
// unlike the implicit .env read done by Load.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnv, err)
	}
	return nil
}

// Load fills v from the environment. The first successful parse of a type is
// cached and later calls for the same type copy the cached value.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenv.Do(func() {
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		}
	})

	key := reflect.TypeFor[T]()

	parsed.mu.Lock()
	defer parsed.mu.Unlock()

	if cached, ok := parsed.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	var out T
	if err := env.Parse(&out); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	parsed.values[key] = out
	*v = out
	return nil
}

// MustLoad is Load that panics on failure. Use it only in main.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Reset drops every cached config so the next Load re-reads the environment.
func Reset() {
	parsed.mu.Lock()
	defer parsed.mu.Unlock()
	clear(parsed.values)
}
