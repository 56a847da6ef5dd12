// Package store persists the list of recently posted locations between runs.
//
// Every run reloads the state, so nothing here relies on process memory
// outliving a single invocation. Backends replace the whole document on Save
// and never expose a partially written one to Load.
package store

import (
	"context"
	"fmt"
)

// Store loads and saves RecentSelections.
type Store interface {
	// Load returns the persisted records. Missing state is an empty list,
	// unparseable state is ErrStateCorruption.
	Load(ctx context.Context) (RecentSelections, error)
	// Save overwrites the persisted records. Failures wrap ErrPersistence.
	Save(ctx context.Context, records RecentSelections) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Path is the state file for the file backend.
	Path string

	// Key names the redis key or the mongo document id.
	Key string

	RedisURL      string
	MongoURI      string
	MongoDatabase string
}

// Open builds the configured backend. An empty backend means file.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("file state backend needs a path")
		}
		return NewFileStore(opts.Path), nil
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.Key)
	case BackendMongo:
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, opts.Key)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
