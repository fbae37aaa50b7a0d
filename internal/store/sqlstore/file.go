package sqlstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)

type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.dir }
func (fi *fileInfo) Sys() any           { return nil }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// File is an open node. Content is held in memory and written back on
// Close when it changed.
type File struct {
	fs       *FS
	ctx      context.Context
	path     string
	info     *fileInfo
	data     []byte
	pos      int64
	children []os.FileInfo
	writable bool
	dirty    bool
	closed   bool
}

var errClosed = errors.New("file already closed")

func (f *File) Close() error {
	if f.closed {
		return errClosed
	}
	f.closed = true
	if !f.dirty {
		return nil
	}
	return f.fs.save(f.ctx, f.path, f.data)
}

func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	if f.info.dir {
		return 0, &os.PathError{Op: "read", Path: f.path, Err: errors.New("is a directory")}
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(len(f.data)) + offset
	default:
		return 0, &os.PathError{Op: "seek", Path: f.path, Err: os.ErrInvalid}
	}
	if abs < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.path, Err: os.ErrInvalid}
	}
	f.pos = abs
	return abs, nil
}

func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errClosed
	}
	if !f.writable {
		return 0, &os.PathError{Op: "write", Path: f.path, Err: os.ErrPermission}
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	f.dirty = true
	f.info.size = int64(len(f.data))
	return len(p), nil
}

func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if f.closed {
		return nil, errClosed
	}
	if !f.info.dir {
		return nil, &os.PathError{Op: "readdir", Path: f.path, Err: errors.New("not a directory")}
	}
	if count <= 0 {
		out := f.children
		f.children = nil
		return out, nil
	}
	if len(f.children) == 0 {
		return nil, io.EOF
	}
	if count > len(f.children) {
		count = len(f.children)
	}
	out := f.children[:count]
	f.children = f.children[count:]
	return out, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.closed {
		return nil, errClosed
	}
	return f.info, nil
}
