package logging

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShort(t *testing.T) {
	require.Equal(t, "ba7816bf", Short("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"))
	require.Equal(t, "abc", Short("abc"))
	require.Equal(t, "", Short(""))
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "test", "warn")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "name", Short("0123456789"))
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "01234567")
	require.NotContains(t, buf.String(), "0123456789")

	_, err = New(&buf, "test", "loud")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	w, closeFn, err := Open("-")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "soroban.log")
	w, closeFn, err = Open(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, closeFn())
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	l := Discard()
	require.Same(t, l, OrDiscard(l))
}
