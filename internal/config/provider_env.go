package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secret keys as environment variable names. It is
// used for local development where secrets live in the environment or .env.
type EnvVarProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvVarProvider returns an EnvVarProvider backed by os.LookupEnv.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{lookup: os.LookupEnv}
}

// GetParametersBatch returns the values of the keys that are set. Unset keys
// are omitted.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	lookup := p.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := lookup(k); ok {
			out[k] = v
		}
	}
	return out, nil
}
