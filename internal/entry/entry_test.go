package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Toggled(t *testing.T) {
	assert.Equal(t, Broken, Unmarked.Toggled())
	assert.Equal(t, Broken, Good.Toggled())
	assert.Equal(t, Good, Broken.Toggled())
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{Unmarked, Good, Broken} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("maybe")
	assert.Error(t, err)
}

func TestParseUpscaleState(t *testing.T) {
	assert.Equal(t, IsUpscale, ParseUpscaleState("is_upscale"))
	assert.Equal(t, HasUpscale, ParseUpscaleState("has_upscale"))
	assert.Equal(t, UpscaleNone, ParseUpscaleState(""))
	assert.Equal(t, UpscaleNone, ParseUpscaleState("garbage"))
}

func TestClone_DoesNotShareSeed(t *testing.T) {
	e := Entry{ID: "a"}
	e.SetSeed(7)

	c := e.Clone()
	*c.Seed = 9

	assert.Equal(t, int64(7), *e.Seed)
}

func TestClearRender(t *testing.T) {
	e := Entry{ID: "a", Filepath: "x.png", Width: 10, Height: 20}
	e.ClearRender()
	assert.False(t, e.HasRender())
	assert.Zero(t, e.Width)
	assert.Zero(t, e.Height)
	assert.NoError(t, e.Validate())
}

func TestValidate(t *testing.T) {
	seed := MaxSeed + 1
	tests := []struct {
		name  string
		entry Entry
	}{
		{"empty id", Entry{}},
		{"dimensions without render", Entry{ID: "a", Width: 5}},
		{"upscale without original", Entry{ID: "a", Upscale: IsUpscale}},
		{"seed out of range", Entry{ID: "a", Seed: &seed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.entry.Validate())
		})
	}
}
