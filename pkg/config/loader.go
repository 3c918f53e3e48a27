package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cache   sync.Map // reflect.Type -> *entry
	envOnce sync.Once
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

// LoadDotenv loads the given files (".env" when none are passed) into the
// process environment. Variables already set are not overwritten. Missing
// files are ignored because deployments usually configure via real env.
func LoadDotenv(files ...string) {
	envOnce.Do(func() {
		_ = godotenv.Load(files...)
	})
}

// Load parses environment variables into v using caarlos0/env struct tags.
// Each config type is parsed once per process; later calls copy the cached
// value, so packages may call Load for the same type independently.
//
//	type Config struct {
//		URL string `env:"REDIS_URL,required"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	LoadDotenv()

	key := reflect.TypeFor[T]()
	e, _ := cache.LoadOrStore(key, &entry{})
	ent := e.(*entry)
	ent.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			ent.err = errors.Join(ErrParsingConfig, err)
			return
		}
		ent.value = parsed
	})
	if ent.err != nil {
		return ent.err
	}
	*v = ent.value.(T)
	return nil
}

// Parse is Load without caching. Useful when the environment changes between
// calls, for example in tests.
func Parse[T any](v *T, opts ...env.Options) error {
	if v == nil {
		return ErrNilPointer
	}
	var o env.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if err := env.ParseWithOptions(v, o); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad is Load that panics on error. Intended for main packages where a
// missing setting should stop startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load %s: %v", reflect.TypeFor[T](), err))
	}
}
