package archivestore

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type SnapshotFactory func(dsn string) (SnapshotStore, error)

var snapshotFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]SnapshotFactory
}{
	factories: map[string]SnapshotFactory{},
}

// RegisterSnapshotFactory adds or overrides the backend for a DSN scheme.
func RegisterSnapshotFactory(scheme string, factory SnapshotFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	snapshotFactoryRegistry.mu.Lock()
	defer snapshotFactoryRegistry.mu.Unlock()
	snapshotFactoryRegistry.factories[scheme] = factory
}

func lookupSnapshotFactory(scheme string) (SnapshotFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	snapshotFactoryRegistry.mu.RLock()
	defer snapshotFactoryRegistry.mu.RUnlock()
	factory, ok := snapshotFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildSnapshotStoreFromDSN accepts a bare path, file://path, memory://,
// postgres://... and sqlite://path. An empty DSN yields nil, nil.
func BuildSnapshotStoreFromDSN(dsn string) (SnapshotStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupSnapshotFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileSnapshots(path), nil
	case "memory", "mem", "inmem":
		return NewMemorySnapshots(), nil
	case "postgres", "postgresql":
		return NewPostgresSnapshots(dsn)
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteSnapshots(path)
	case "mysql":
		return nil, fmt.Errorf("%w: archive backend %s", ErrNotImplemented, scheme)
	default:
		if len(scheme) == 1 {
			// Windows drive letter.
			return NewFileSnapshots(dsn), nil
		}
		return nil, fmt.Errorf("unsupported archive backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if host := strings.TrimSpace(parsed.Host); host != "" {
		path = host + path
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
