package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the analysis definition from the given path (a file or a
	// directory of files), translates it into the format-agnostic model,
	// applies defaults, and validates it.
	Load(ctx context.Context, path string) (*Model, error)
}
