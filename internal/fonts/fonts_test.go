package fonts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func TestLoadEmbedded(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	w1, h1 := f.Measure("go", 20)
	w2, h2 := f.Measure("gogo", 20)
	assert.Greater(t, w1, 0.0)
	assert.Greater(t, h1, 0.0)
	assert.InDelta(t, 2*w1, w2, 3, "width grows with text length")
	assert.Equal(t, h1, h2, "line height depends on size only")

	_, h3 := f.Measure("go", 40)
	assert.Greater(t, h3, h1)
}

func TestCovers(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	assert.True(t, f.Covers("gopher cloud"))
	assert.True(t, f.Covers(""))
	assert.False(t, f.Covers("猫"), "Go Regular has no CJK glyphs")
	assert.False(t, f.Covers("word 雲"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "font.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ttf"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.ttf")
	require.NoError(t, os.WriteFile(bad, []byte("not a font"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
