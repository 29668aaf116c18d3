package volume

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfTempDir(t *testing.T) {
	dir := t.TempDir()
	u, err := Of(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, u.Path)
	assert.NotZero(t, u.Total)
	assert.LessOrEqual(t, u.Free, u.Total)
}

func TestOfMissingPath(t *testing.T) {
	_, err := Of(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
