package sqlstore

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestLikePrefix(t *testing.T) {
	require.Equal(t, "/%", likePrefix("/"))
	require.Equal(t, `/a\_b\%c\\d/%`, likePrefix(`/a_b%c\d`))
}

func TestFile_ReadSeekWrite(t *testing.T) {
	f := &File{path: "/book/a.vcf", info: &fileInfo{name: "a.vcf"}, data: []byte("hello"), writable: true}

	buf := make([]byte, 3)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hel", string(buf[:n]))

	pos, err := f.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	require.EqualValues(t, 4, pos)

	_, err = f.Write([]byte("OWORLD"))
	require.NoError(t, err)
	require.Equal(t, "hellOWORLD", string(f.data))
	require.EqualValues(t, 10, f.info.size)
	require.True(t, f.dirty)

	_, err = f.Seek(-20, io.SeekCurrent)
	require.Error(t, err)

	_, err = f.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestFile_ReadOnly(t *testing.T) {
	f := &File{path: "/a", info: &fileInfo{name: "a"}}
	_, err := f.Write([]byte("x"))
	require.ErrorIs(t, err, os.ErrPermission)
}

func TestFile_Readdir(t *testing.T) {
	kids := []os.FileInfo{&fileInfo{name: "a"}, &fileInfo{name: "b"}, &fileInfo{name: "c"}}
	f := &File{path: "/", info: &fileInfo{dir: true}, children: kids}

	first, err := f.Readdir(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := f.Readdir(2)
	require.NoError(t, err)
	require.Equal(t, "c", rest[0].Name())
	_, err = f.Readdir(1)
	require.ErrorIs(t, err, io.EOF)

	_, err = f.Read(make([]byte, 1))
	require.Error(t, err)
	require.True(t, (&fileInfo{dir: true}).Mode().IsDir())
}

// openTestFS connects to CARDQ_TEST_POSTGRES_DSN and uses a throwaway table.
func openTestFS(t *testing.T) *FS {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CARDQ_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("CARDQ_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	table := "cardq_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	fsys, err := New(context.Background(), db, WithTable(table))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`DROP TABLE IF EXISTS ` + fsys.t())
		_ = db.Close()
	})
	return fsys
}

func writeAll(t *testing.T, fsys *FS, name, body string) {
	t.Helper()
	f, err := fsys.OpenFile(context.Background(), name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFS_Postgres(t *testing.T) {
	fsys := openTestFS(t)
	ctx := context.Background()

	require.NoError(t, fsys.Mkdir(ctx, "/book", 0o755))
	err := fsys.Mkdir(ctx, "/book", 0o755)
	require.True(t, errors.Is(err, os.ErrExist), "err=%v", err)
	err = fsys.Mkdir(ctx, "/missing/child", 0o755)
	require.True(t, errors.Is(err, os.ErrNotExist), "err=%v", err)

	writeAll(t, fsys, "/book/a.vcf", "BEGIN:VCARD\r\nEND:VCARD\r\n")
	writeAll(t, fsys, "/book/b.vcf", "x")

	fi, err := fsys.Stat(ctx, "/book/a.vcf")
	require.NoError(t, err)
	require.EqualValues(t, 24, fi.Size())
	require.False(t, fi.IsDir())

	dir, err := fsys.OpenFile(ctx, "/book", os.O_RDONLY, 0)
	require.NoError(t, err)
	kids, err := dir.Readdir(-1)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	require.Equal(t, "a.vcf", kids[0].Name())
	require.NoError(t, dir.Close())

	require.NoError(t, fsys.Rename(ctx, "/book", "/moved"))
	f, err := fsys.OpenFile(ctx, "/moved/a.vcf", os.O_RDONLY, 0)
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "BEGIN:VCARD\r\nEND:VCARD\r\n", string(b))
	require.NoError(t, f.Close())

	require.NoError(t, fsys.RemoveAll(ctx, "/moved"))
	_, err = fsys.Stat(ctx, "/moved/b.vcf")
	require.True(t, errors.Is(err, os.ErrNotExist), "err=%v", err)
	_, err = fsys.Stat(ctx, "/")
	require.NoError(t, err)
}
