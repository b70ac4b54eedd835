package fatdisk

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGoFs(t *testing.T) GoFs {
	t.Helper()

	s, host := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(host, "/readme.md", []byte("# fatdisk\n"), 0644))
	require.NoError(t, afero.WriteFile(host, "/hello.txt", testPayload(1500), 0644))
	require.NoError(t, afero.WriteFile(host, "/empty", nil, 0644))

	require.NoError(t, s.CopyIn("/readme.md", "/readme.md"))
	require.NoError(t, s.Mkdir("/docs"))
	require.NoError(t, s.Mkdir("/docs/deep"))
	require.NoError(t, s.CopyIn("/hello.txt", "/docs/hello.txt"))
	require.NoError(t, s.CopyIn("/empty", "/docs/deep/empty"))

	// The working directory must not matter.
	require.NoError(t, s.Chdir("/docs"))

	return s.FS()
}

func TestGoFS(t *testing.T) {
	gofs := newTestGoFs(t)
	if err := fstest.TestFS(gofs, "readme.md", "docs/hello.txt", "docs/deep/empty"); err != nil {
		t.Fatal(err)
	}
}

func TestGoFs_ReadFile(t *testing.T) {
	gofs := newTestGoFs(t)

	data, err := fs.ReadFile(gofs, "docs/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, testPayload(1500), data)

	data, err = fs.ReadFile(gofs, "docs/deep/empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestGoFs_WalkDir(t *testing.T) {
	gofs := newTestGoFs(t)

	var paths []string
	err := fs.WalkDir(gofs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{".", "docs", "docs/deep", "docs/deep/empty", "docs/hello.txt", "readme.md"}, paths)
}

func TestGoFs_Open_errors(t *testing.T) {
	gofs := newTestGoFs(t)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing", path: "missing.txt", wantErr: fs.ErrNotExist},
		{name: "below a file", path: "readme.md/x", wantErr: fs.ErrNotExist},
		{name: "absolute", path: "/readme.md", wantErr: fs.ErrInvalid},
		{name: "parent", path: "../readme.md", wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gofs.Open(tt.path)

			var pathErr *fs.PathError
			require.True(t, errors.As(err, &pathErr), "got %v", err)
			assert.Equal(t, tt.path, pathErr.Path)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
