package docloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) *store.Connection {
	t.Helper()
	dir := t.TempDir()
	conn, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, store.BootstrapProject(context.Background(), conn))
	return conn
}

func TestLoadPrefersExistingDBDocuments(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	docs := repo.Documents{}
	_, err := docs.Create(ctx, conn.DB, "uploaded.md", "already in the GUI")
	require.NoError(t, err)

	out, err := Load(ctx, conn, "/nonexistent/doc/root")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "uploaded.md", out[0].FileName)
}

func TestLoadFromDiskFiltersAndIngests(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "intro.md"), []byte("# Intro"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "private.pem"), []byte("key material"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("plain notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{0xff, 0xd8}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "chapter1.md"), []byte("chapter"), 0o644))

	out, err := Load(ctx, conn, root)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, d := range out {
		names[d.FileName] = true
	}
	require.True(t, names["intro.md"])
	require.True(t, names["notes.txt"])
	require.True(t, names["sub/chapter1.md"])
	require.False(t, names[".env"])
	require.False(t, names["private.pem"])
	require.False(t, names["image.png"])
	require.Len(t, out, 3)
}

func TestLoadFailsWhenNothingAvailable(t *testing.T) {
	conn := openTestConn(t)
	_, err := Load(context.Background(), conn, "")
	require.Error(t, err)
}

func TestIsDenylisted(t *testing.T) {
	cases := map[string]bool{
		".env":             true,
		".env.local":       false,
		"id_rsa.key":       true,
		"server.pem":       true,
		"credentials.json": true,
		".gitignore":       true,
		"readme.md":        false,
		"notes.txt":        false,
	}
	for name, want := range cases {
		require.Equal(t, want, isDenylisted(name), name)
	}
}
