package store

import (
	"context"
	"encoding/xml"
	"net/http"
	"os"
	"path"

	"golang.org/x/net/webdav"

	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/davxml"
)

// PropSource supplies the CardDAV properties attached to resources served
// through FileSystem.
type PropSource interface {
	DeadProps(ctx context.Context, res cardreport.Resource) []cardreport.Property
}

// FileSystem exposes the store to a webdav.Handler. Hidden files are not
// reachable, writes drop cached ctags, and opened files carry the
// properties of props as dead properties.
func (s *Store) FileSystem(props PropSource) webdav.FileSystem {
	return &davFS{s: s, props: props}
}

type davFS struct {
	s     *Store
	props PropSource
}

func notExist(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
}

func (d *davFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	name = Clean(name)
	if Hidden(name) {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrPermission}
	}
	if err := d.s.fs.Mkdir(ctx, name, perm); err != nil {
		return err
	}
	d.s.Touch(path.Dir(name))
	return nil
}

func (d *davFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	name = Clean(name)
	if Hidden(name) {
		return nil, notExist("open", name)
	}
	f, err := d.s.fs.OpenFile(ctx, name, flag, perm)
	if err != nil {
		return nil, err
	}
	writable := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0
	return &davFile{File: f, ctx: ctx, fs: d, name: name, writable: writable}, nil
}

func (d *davFS) RemoveAll(ctx context.Context, name string) error {
	name = Clean(name)
	if Hidden(name) {
		return notExist("remove", name)
	}
	err := d.s.fs.RemoveAll(ctx, name)
	d.s.Touch(name)
	d.s.Touch(path.Dir(name))
	return err
}

func (d *davFS) Rename(ctx context.Context, oldName, newName string) error {
	oldName, newName = Clean(oldName), Clean(newName)
	if Hidden(oldName) || Hidden(newName) {
		return notExist("rename", oldName)
	}
	err := d.s.fs.Rename(ctx, oldName, newName)
	for _, p := range []string{oldName, newName} {
		d.s.Touch(p)
		d.s.Touch(path.Dir(p))
	}
	return err
}

func (d *davFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = Clean(name)
	if Hidden(name) {
		return nil, notExist("stat", name)
	}
	return d.s.fs.Stat(ctx, name)
}

type davFile struct {
	webdav.File
	ctx      context.Context
	fs       *davFS
	name     string
	writable bool
}

var _ webdav.DeadPropsHolder = (*davFile)(nil)

func (f *davFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(count)
	out := infos[:0]
	for _, fi := range infos {
		if !Hidden(fi.Name()) {
			out = append(out, fi)
		}
	}
	return out, err
}

func (f *davFile) Close() error {
	err := f.File.Close()
	if f.writable {
		f.fs.s.Touch(path.Dir(f.name))
	}
	return err
}

func (f *davFile) DeadProps() (map[xml.Name]webdav.Property, error) {
	if f.fs.props == nil {
		return nil, nil
	}
	fi, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	res, err := f.fs.s.resource(f.ctx, f.name, fi, nil)
	if err != nil {
		return nil, err
	}
	props := f.fs.props.DeadProps(f.ctx, res)
	out := make(map[xml.Name]webdav.Property, len(props))
	for _, p := range props {
		name := xml.Name{Space: p.Name.Space, Local: p.Name.Local}
		inner := p.InnerXML
		if inner == "" {
			inner = davxml.EscapeText(p.Text)
		}
		out[name] = webdav.Property{XMLName: name, InnerXML: []byte(inner)}
	}
	return out, nil
}

// Patch refuses every change; the served properties are computed.
func (f *davFile) Patch(patches []webdav.Proppatch) ([]webdav.Propstat, error) {
	st := webdav.Propstat{Status: http.StatusForbidden}
	for _, p := range patches {
		for _, prop := range p.Props {
			st.Props = append(st.Props, webdav.Property{XMLName: prop.XMLName})
		}
	}
	return []webdav.Propstat{st}, nil
}
