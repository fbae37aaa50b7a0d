package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"golang.org/x/net/webdav"
	"gopkg.in/yaml.v3"
)

// MarkerName is the file that turns a directory into an address book.
const MarkerName = ".addressbook.yaml"

type marker struct {
	DisplayName string `yaml:"displayname,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// readMarker loads the marker of dir. ok is false when dir is a plain
// collection.
func readMarker(ctx context.Context, fsys webdav.FileSystem, dir string) (marker, bool, error) {
	f, err := fsys.OpenFile(ctx, path.Join(dir, MarkerName), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return marker{}, false, nil
		}
		return marker{}, false, err
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return marker{}, false, fmt.Errorf("read %s marker: %w", dir, err)
	}
	var m marker
	if err := yaml.Unmarshal(b, &m); err != nil {
		return marker{}, false, fmt.Errorf("parse %s marker: %w", dir, err)
	}
	return m, true, nil
}

func writeMarker(ctx context.Context, fsys webdav.FileSystem, dir string, m marker) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return writeFile(ctx, fsys, path.Join(dir, MarkerName), b)
}
