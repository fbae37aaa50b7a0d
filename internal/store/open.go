package store

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"github.com/r9s-ai/cardq/internal/store/sqlstore"
	"github.com/r9s-ai/cardq/pkg/config"
)

// OpenDir returns a Store over the directory root. With watch set,
// collection ctags are cached and refreshed from filesystem events.
func OpenDir(root string, watch bool, opts ...Option) (*Store, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open store dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("open store dir: %s is not a directory", root)
	}
	s := New(webdav.Dir(root), opts...)
	if watch {
		cache := newCTagCache()
		closer, err := watchDir(root, cache, s.log)
		if err != nil {
			return nil, fmt.Errorf("watch store dir: %w", err)
		}
		s.ctags = cache
		s.closer = closer
	}
	return s, nil
}

// Open builds the store selected by cfg.
func Open(cfg config.StoreConfig, log zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case "", "fs":
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return OpenDir(cfg.Dir, cfg.Watch, WithLogger(log))
	case "postgres":
		fsys, err := sqlstore.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		s := New(fsys, WithLogger(log))
		s.closer = fsys
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
