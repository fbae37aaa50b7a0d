// Package store keeps address books and cards on a webdav.FileSystem.
//
// A directory is an address book when it holds a marker file named
// .addressbook.yaml. Regular files directly inside an address book are
// cards. Names starting with a dot are hidden from listings.
package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/webdav"

	"github.com/r9s-ai/cardq/pkg/cardreport"
)

var (
	// ErrNotFound is returned for paths that do not exist.
	ErrNotFound = cardreport.ErrNotFound
	// ErrNotAddressBook is returned when a card is written outside an
	// address book.
	ErrNotAddressBook = errors.New("parent is not an address book")
	// ErrIsCollection is returned when card content is requested for a
	// collection.
	ErrIsCollection = errors.New("resource is a collection")
	// ErrExists is returned when creating a collection that already exists.
	ErrExists = errors.New("resource already exists")
)

// Store implements cardreport.Store on top of a webdav.FileSystem.
type Store struct {
	fs     webdav.FileSystem
	ctags  *ctagCache
	closer io.Closer
	log    zerolog.Logger
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store backed by fsys.
func New(fsys webdav.FileSystem, opts ...Option) *Store {
	s := &Store{fs: fsys, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ cardreport.Store = (*Store)(nil)

// Clean normalizes p into a slash rooted path.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// Hidden reports whether any segment of p starts with a dot.
func Hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (s *Store) Stat(ctx context.Context, p string) (cardreport.Resource, error) {
	p = Clean(p)
	if Hidden(p) {
		return cardreport.Resource{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	fi, err := s.fs.Stat(ctx, p)
	if err != nil {
		return cardreport.Resource{}, mapErr(err)
	}
	return s.resource(ctx, p, fi, nil)
}

// resource classifies fi. parentIsBook short-circuits the parent lookup
// when the caller already knows it.
func (s *Store) resource(ctx context.Context, p string, fi os.FileInfo, parentIsBook *bool) (cardreport.Resource, error) {
	res := cardreport.Resource{Path: p, Size: fi.Size(), ModTime: fi.ModTime()}
	if fi.IsDir() {
		res.Kind = cardreport.KindCollection
		m, ok, err := readMarker(ctx, s.fs, p)
		if err != nil {
			return cardreport.Resource{}, err
		}
		if ok {
			res.Kind = cardreport.KindAddressBook
			res.DisplayName = m.DisplayName
			res.Description = m.Description
		}
		res.Size = 0
		return res, nil
	}
	var inBook bool
	if parentIsBook != nil {
		inBook = *parentIsBook
	} else if p != "/" {
		_, ok, err := readMarker(ctx, s.fs, path.Dir(p))
		if err != nil {
			return cardreport.Resource{}, err
		}
		inBook = ok
	}
	if inBook {
		res.Kind = cardreport.KindCard
	}
	return res, nil
}

// Children lists the visible children of a collection ordered by name.
func (s *Store) Children(ctx context.Context, p string) ([]cardreport.Resource, error) {
	parent, err := s.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if !parent.Kind.IsCollection() {
		return nil, nil
	}
	f, err := s.fs.OpenFile(ctx, parent.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = f.Close() }()
	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parent.Path, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	isBook := parent.Kind == cardreport.KindAddressBook
	out := make([]cardreport.Resource, 0, len(infos))
	for _, fi := range infos {
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		res, err := s.resource(ctx, path.Join(parent.Path, fi.Name()), fi, &isBook)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, p string) ([]byte, error) {
	p = Clean(p)
	if Hidden(p) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	f, err := s.fs.OpenFile(ctx, p, os.O_RDONLY, 0)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsCollection, p)
	}
	return io.ReadAll(f)
}

// Put writes a card into an existing address book and reports whether it
// was created.
func (s *Store) Put(ctx context.Context, p string, data []byte) (cardreport.Resource, bool, error) {
	p = Clean(p)
	if Hidden(p) || p == "/" {
		return cardreport.Resource{}, false, fmt.Errorf("invalid card path %q", p)
	}
	parent, err := s.Stat(ctx, path.Dir(p))
	if err != nil {
		return cardreport.Resource{}, false, err
	}
	if parent.Kind != cardreport.KindAddressBook {
		return cardreport.Resource{}, false, fmt.Errorf("%w: %s", ErrNotAddressBook, parent.Path)
	}
	created := false
	if fi, err := s.fs.Stat(ctx, p); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return cardreport.Resource{}, false, err
		}
		created = true
	} else if fi.IsDir() {
		return cardreport.Resource{}, false, fmt.Errorf("%w: %s", ErrIsCollection, p)
	}
	if err := writeFile(ctx, s.fs, p, data); err != nil {
		return cardreport.Resource{}, false, err
	}
	s.Touch(parent.Path)
	res, err := s.Stat(ctx, p)
	if err != nil {
		return cardreport.Resource{}, false, err
	}
	return res, created, nil
}

// Delete removes a card or a whole collection.
func (s *Store) Delete(ctx context.Context, p string) error {
	p = Clean(p)
	if Hidden(p) || p == "/" {
		return fmt.Errorf("invalid path %q", p)
	}
	if _, err := s.fs.Stat(ctx, p); err != nil {
		return mapErr(err)
	}
	if err := s.fs.RemoveAll(ctx, p); err != nil {
		return mapErr(err)
	}
	s.Touch(p)
	s.Touch(path.Dir(p))
	return nil
}

// MkAddressBook creates an address book at p. Missing parents are not
// created.
func (s *Store) MkAddressBook(ctx context.Context, p, displayName, description string) error {
	p = Clean(p)
	if Hidden(p) || p == "/" {
		return fmt.Errorf("invalid address book path %q", p)
	}
	if err := s.fs.Mkdir(ctx, p, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, p)
		}
		return mapErr(err)
	}
	if err := writeMarker(ctx, s.fs, p, marker{DisplayName: displayName, Description: description}); err != nil {
		_ = s.fs.RemoveAll(ctx, p)
		return err
	}
	s.Touch(path.Dir(p))
	return nil
}

// ETag returns the entity tag of res. It matches the getetag value served
// by the webdav handler for the same file.
func ETag(res cardreport.Resource) string {
	return fmt.Sprintf(`"%x%x"`, res.ModTime.UnixNano(), res.Size)
}

// CTag returns a token that changes whenever the direct children of the
// collection at p change.
func (s *Store) CTag(ctx context.Context, p string) (string, error) {
	p = Clean(p)
	var gen uint64
	if s.ctags != nil {
		v, g, ok := s.ctags.get(p)
		if ok {
			return v, nil
		}
		gen = g
	}
	children, err := s.Children(ctx, p)
	if err != nil {
		return "", err
	}
	h := sha1.New()
	for _, c := range children {
		_, _ = fmt.Fprintf(h, "%s\x00%d\x00%d\n", c.Path, c.Size, c.ModTime.UnixNano())
	}
	if res, err := s.Stat(ctx, p); err == nil {
		_, _ = fmt.Fprintf(h, "%s\x00%s", res.DisplayName, res.Description)
	}
	v := hex.EncodeToString(h.Sum(nil))[:16]
	if s.ctags != nil {
		s.ctags.put(p, v, gen)
	}
	return v, nil
}

// Touch drops any cached ctag of the collection at p.
func (s *Store) Touch(p string) {
	if s.ctags != nil {
		s.ctags.drop(Clean(p))
	}
}

// Close stops background watchers and releases the underlying store.
func (s *Store) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func writeFile(ctx context.Context, fsys webdav.FileSystem, p string, data []byte) error {
	f, err := fsys.OpenFile(ctx, p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return mapErr(err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	return f.Close()
}
