package store

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutGet(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	loc, err := fs.Put(ctx, "run-1/build.log", strings.NewReader("build output"))
	require.NoError(t, err)
	assert.Equal(t, "build.log", filepath.Base(loc))

	r, err := fs.Get(ctx, loc)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "build output", string(data))
}

func TestFileStorePutExistingKey(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Put(ctx, "run-1/log.txt", strings.NewReader("one"))
	require.NoError(t, err)

	_, err = fs.Put(ctx, "run-1/log.txt", strings.NewReader("two"))
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestFileStoreDistinctRunKeys(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	locA, err := fs.Put(ctx, "run-a/log.txt", strings.NewReader("a"))
	require.NoError(t, err)
	locB, err := fs.Put(ctx, "run-b/log.txt", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, locA, locB)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Put(context.Background(), "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestFileStoreGetMissing(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), filepath.Join(t.TempDir(), "nothing"))
	assert.ErrorIs(t, err, ErrKeyDoesntExist)
}
