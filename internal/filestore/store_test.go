package filestore

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/config"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

func TestNewKey(t *testing.T) {
	key := NewKey("../My Contract (final).pdf")
	require.Regexp(t, regexp.MustCompile(`^\d+-[0-9a-f]{10}-My_Contract_final_.pdf$`), key)
	require.True(t, validKey(key))

	require.True(t, strings.HasSuffix(NewKey("..."), "-upload"))
	require.NotEqual(t, NewKey("a.txt"), NewKey("a.txt"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	payload := []byte("hello document")
	require.NoError(t, store.Save(ctx, "doc.txt", bytes.NewReader(payload), int64(len(payload))))

	rc, err := store.Open(ctx, "doc.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, "doc.txt"))
	require.NoError(t, store.Delete(ctx, "doc.txt"))
	_, err = store.Open(ctx, "doc.txt")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsPaths(t *testing.T) {
	store := NewLocal(t.TempDir())
	err := store.Save(context.Background(), "../escape.txt", strings.NewReader("x"), 1)
	require.Error(t, err)
	_, err = store.Open(context.Background(), "a/b.txt")
	require.Error(t, err)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local"})
	require.Error(t, err)
}
