package catalogue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/rating"
)

var prior = rating.Belief{Mu: 25, Sigma: 25.0 / 3}

func TestRead(t *testing.T) {
	csv := strings.Join([]string{
		"prompt,file,upscale,mu,sigma,width,height,seed",
		"a lighthouse,/home/c/Bilder/FluxBatch_0001.png,has_upscale,28.5,3.1,1344,768,77",
		`"fog, at dawn",C:\renders\FluxBatch_0002.png,none,nan,,1344.0,768,`,
		"blank entry,,none,,,1344,768,",
	}, "\n")

	entries, err := Read(strings.NewReader(csv), prior)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Empty(t, first.ID)
	assert.Equal(t, "a lighthouse", first.PromptText)
	assert.Equal(t, "FluxBatch_0001.png", first.Filepath)
	assert.Equal(t, entry.HasUpscale, first.Upscale)
	assert.Equal(t, rating.Belief{Mu: 28.5, Sigma: 3.1}, first.Quality)
	assert.Equal(t, 1344, first.Width)
	assert.Equal(t, 768, first.Height)
	require.NotNil(t, first.Seed)
	assert.Equal(t, int64(77), *first.Seed)

	second := entries[1]
	assert.Equal(t, "fog, at dawn", second.PromptText)
	assert.Equal(t, "FluxBatch_0002.png", second.Filepath)
	assert.Equal(t, prior, second.Quality)
	assert.Equal(t, 1344, second.Width)
	assert.Nil(t, second.Seed)

	third := entries[2]
	assert.False(t, third.HasRender())
	assert.Zero(t, third.Width, "dimensions require a render")
	assert.Zero(t, third.Height)
}

func TestRead_UpscaleOriginal(t *testing.T) {
	csv := "prompt,file,upscale,mu,sigma,width,height,orig_file\n" +
		"x,up.png,is_upscale,25,8,10,10,base.png\n" +
		"y,up2.png,is_upscale,25,8,10,10,\n"

	entries, err := Read(strings.NewReader(csv), prior)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, entry.IsUpscale, entries[0].Upscale)
	assert.Equal(t, "base.png", entries[0].OrigFilepath)
	assert.Equal(t, entry.UpscaleNone, entries[1].Upscale)
	for _, e := range entries {
		e.ID = "check"
		assert.NoError(t, e.Validate())
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty", ""},
		{"missing column", "prompt,file,mu,sigma,width,height\nx,a.png,1,1,1,1\n"},
		{"empty prompt", "prompt,file,upscale,mu,sigma,width,height\n,a.png,none,1,1,1,1\n"},
		{"bad seed", "prompt,file,upscale,mu,sigma,width,height,seed\nx,a.png,none,1,1,1,1,-4\n"},
		{"seed too large", "prompt,file,upscale,mu,sigma,width,height,seed\nx,a.png,none,1,1,1,1,2147483648\n"},
		{"ragged row", "prompt,file,upscale,mu,sigma,width,height\nx,a.png\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.csv), prior)
			assert.Error(t, err)
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_db.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffprompt,file,upscale,mu,sigma,width,height\nx,a.png,none,20,2,5,5\n"), 0o644))

	entries, err := ReadFile(path, prior)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.png", entries[0].Filepath)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"), prior)
	assert.Error(t, err)
}
