package store

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// watchDir tracks out-of-band changes below root and drops the cached
// ctags of the affected collections.
func watchDir(root string, cache *ctagCache, log zerolog.Logger) (io.Closer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addWatchRecursive(watcher, root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("store watcher error")
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&fsnotify.Create != 0 {
					if fi, statErr := os.Stat(evt.Name); statErr == nil && fi.IsDir() {
						if addErr := addWatchRecursive(watcher, evt.Name); addErr != nil {
							log.Warn().Err(addErr).Str("path", evt.Name).Msg("store watcher add failed")
						}
					}
				}
				p, ok := storePath(root, evt.Name)
				if !ok || evt.Op == fsnotify.Chmod {
					continue
				}
				cache.drop(p)
				cache.drop(path.Dir(p))
				log.Debug().Str("path", p).Str("op", evt.Op.String()).Msg("store changed")
			}
		}
	}()

	log.Info().Str("dir", root).Msg("store watcher enabled")
	return closerFunc(func() error {
		close(stopCh)
		err := watcher.Close()
		<-doneCh
		return err
	}), nil
}

// storePath maps an OS path below root to a store path. Marker files map
// to their address book.
func storePath(root, name string) (string, bool) {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	p := Clean(filepath.ToSlash(rel))
	if path.Base(p) == MarkerName {
		return path.Dir(p), true
	}
	if Hidden(p) {
		return "", false
	}
	return p, true
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(p)
	})
}
