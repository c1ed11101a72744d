package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths locally
// mapped to env vars) into plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> plaintext for every key that
	// could be resolved. Unresolvable keys are either omitted or reported as
	// an error, depending on the implementation.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
