// Package sqlstore implements webdav.FileSystem on a PostgreSQL table so
// address books can live in a database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/net/webdav"
)

const defaultTable = "cardq_nodes"

// FS stores every node of the tree as one row keyed by its path.
type FS struct {
	db    *sqlx.DB
	table string
	owned bool
}

var _ webdav.FileSystem = (*FS)(nil)

type Option func(*FS)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(f *FS) { f.table = name }
}

// Open connects to dsn and creates the schema when missing.
func Open(dsn string, opts ...Option) (*FS, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	f, err := New(context.Background(), db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	f.owned = true
	return f, nil
}

// New uses an existing connection pool. The caller keeps ownership of db.
func New(ctx context.Context, db *sqlx.DB, opts ...Option) (*FS, error) {
	f := &FS{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.migrate(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the connection pool when Open created it.
func (f *FS) Close() error {
	if f.owned {
		return f.db.Close()
	}
	return nil
}

func (f *FS) t() string {
	return pq.QuoteIdentifier(f.table)
}

func (f *FS) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + f.t() + ` (
			path     TEXT PRIMARY KEY,
			parent   TEXT NOT NULL,
			name     TEXT NOT NULL,
			is_dir   BOOLEAN NOT NULL,
			data     BYTEA NOT NULL DEFAULT ''::bytea,
			mod_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(f.table+"_parent_idx") + ` ON ` + f.t() + ` (parent)`,
		`INSERT INTO ` + f.t() + ` (path, parent, name, is_dir) VALUES ('/', '', '', TRUE) ON CONFLICT (path) DO NOTHING`,
	}
	for _, s := range stmts {
		if _, err := f.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate %s: %w", f.table, err)
		}
	}
	return nil
}

type node struct {
	Path    string    `db:"path"`
	Name    string    `db:"name"`
	IsDir   bool      `db:"is_dir"`
	Size    int64     `db:"size"`
	ModTime time.Time `db:"mod_time"`
}

func (n node) info() *fileInfo {
	return &fileInfo{name: n.Name, size: n.Size, modTime: n.ModTime, dir: n.IsDir}
}

func clean(name string) string {
	return path.Clean("/" + name)
}

func (f *FS) stat(ctx context.Context, q sqlx.QueryerContext, name string) (node, error) {
	var n node
	err := sqlx.GetContext(ctx, q, &n, `SELECT path, name, is_dir, octet_length(data) AS size, mod_time FROM `+f.t()+` WHERE path = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return node{}, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return n, err
}

func (f *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	n, err := f.stat(ctx, f.db, clean(name))
	if err != nil {
		return nil, err
	}
	return n.info(), nil
}

// requireDir checks that dir exists and is a directory.
func (f *FS) requireDir(ctx context.Context, q sqlx.QueryerContext, op, dir string) error {
	n, err := f.stat(ctx, q, dir)
	if err != nil {
		return &os.PathError{Op: op, Path: dir, Err: os.ErrNotExist}
	}
	if !n.IsDir {
		return &os.PathError{Op: op, Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}

func (f *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	name = clean(name)
	if name == "/" {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
	}
	if err := f.requireDir(ctx, f.db, "mkdir", path.Dir(name)); err != nil {
		return err
	}
	res, err := f.db.ExecContext(ctx,
		`INSERT INTO `+f.t()+` (path, parent, name, is_dir) VALUES ($1, $2, $3, TRUE) ON CONFLICT (path) DO NOTHING`,
		name, path.Dir(name), path.Base(name))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
	}
	return nil
}

func (f *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	name = clean(name)
	n, err := f.stat(ctx, f.db, name)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	switch {
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	case exists && n.IsDir && writable:
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("is a directory")}
	}

	file := &File{fs: f, ctx: ctx, path: name, writable: writable}
	if !exists {
		if err := f.requireDir(ctx, f.db, "open", path.Dir(name)); err != nil {
			return nil, err
		}
		file.info = &fileInfo{name: path.Base(name), modTime: time.Now()}
		file.dirty = true
		return file, nil
	}
	file.info = n.info()
	if n.IsDir {
		children, err := f.children(ctx, name)
		if err != nil {
			return nil, err
		}
		file.children = children
		return file, nil
	}
	if flag&os.O_TRUNC == 0 {
		if err := f.db.GetContext(ctx, &file.data, `SELECT data FROM `+f.t()+` WHERE path = $1`, name); err != nil {
			return nil, err
		}
	} else {
		file.dirty = true
	}
	if flag&os.O_APPEND != 0 {
		file.pos = int64(len(file.data))
	}
	return file, nil
}

func (f *FS) children(ctx context.Context, dir string) ([]os.FileInfo, error) {
	var rows []node
	err := f.db.SelectContext(ctx, &rows,
		`SELECT path, name, is_dir, octet_length(data) AS size, mod_time FROM `+f.t()+` WHERE parent = $1 AND path <> '/' ORDER BY name`, dir)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.info())
	}
	return out, nil
}

// save upserts the content of a regular file.
func (f *FS) save(ctx context.Context, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO `+f.t()+` (path, parent, name, is_dir, data, mod_time) VALUES ($1, $2, $3, FALSE, $4, now())
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, mod_time = EXCLUDED.mod_time WHERE NOT `+f.t()+`.is_dir`,
		name, path.Dir(name), path.Base(name), data)
	return err
}

// likePrefix returns a LIKE pattern matching every path below dir.
func likePrefix(dir string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	if dir == "/" {
		return "/%"
	}
	return r.Replace(dir) + "/%"
}

func (f *FS) RemoveAll(ctx context.Context, name string) error {
	name = clean(name)
	if name == "/" {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}
	_, err := f.db.ExecContext(ctx, `DELETE FROM `+f.t()+` WHERE path = $1 OR path LIKE $2`, name, likePrefix(name))
	return err
}

func (f *FS) Rename(ctx context.Context, oldName, newName string) error {
	oldName, newName = clean(oldName), clean(newName)
	if oldName == "/" || newName == "/" {
		return &os.PathError{Op: "rename", Path: oldName, Err: os.ErrPermission}
	}
	if newName == oldName {
		return nil
	}
	if strings.HasPrefix(newName, oldName+"/") {
		return &os.PathError{Op: "rename", Path: oldName, Err: errors.New("cannot move a collection into itself")}
	}
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := f.stat(ctx, tx, oldName); err != nil {
		return err
	}
	if err := f.requireDir(ctx, tx, "rename", path.Dir(newName)); err != nil {
		return err
	}
	if _, err := f.stat(ctx, tx, newName); err == nil {
		return &os.PathError{Op: "rename", Path: newName, Err: os.ErrExist}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE `+f.t()+` SET path = $2::text || substr(path, length($1::text) + 1),
			parent = CASE WHEN path = $1 THEN $3 ELSE $2::text || substr(parent, length($1::text) + 1) END,
			name = CASE WHEN path = $1 THEN $4 ELSE name END
		 WHERE path = $1 OR path LIKE $5`,
		oldName, newName, path.Dir(newName), path.Base(newName), likePrefix(oldName))
	if err != nil {
		return err
	}
	return tx.Commit()
}
