package storage

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/capability"
)

func TestFileLoaderLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	loader := NewFileLoaderFS(fsys, nil)
	require.NoError(t, loader.Save("owner/take.mp3", []byte("audio")))

	data, err := loader.Load(context.Background(), "owner/take.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)
}

func TestFileLoaderErrors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/owner", 0o755))
	loader := NewFileLoaderFS(fsys, nil)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"missing object", "owner/none.mp3", capability.ErrNotFound},
		{"empty key", "  ", capability.ErrNotFound},
		{"directory", "owner", capability.ErrNotReadable},
		{"traversal", "../etc/passwd", capability.ErrNotReadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), tt.key)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFileLoaderHonorsCancelledContext(t *testing.T) {
	loader := NewFileLoaderFS(afero.NewMemMapFs(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, "x.mp3")
	assert.ErrorIs(t, err, context.Canceled)
}
