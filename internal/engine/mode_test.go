package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_StringAndParse(t *testing.T) {
	for m := ModeNormal; m <= ModeDisabled; m++ {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("bogus")
	assert.Error(t, err)
	assert.Equal(t, "mode(200)", Mode(200).String())
}

func TestCrossesInsert(t *testing.T) {
	assert.True(t, CrossesInsert(ModeNormal, ModeInsert))
	assert.True(t, CrossesInsert(ModeInsert, ModeVisual))
	assert.False(t, CrossesInsert(ModeNormal, ModeVisual))
	assert.False(t, CrossesInsert(ModeInsert, ModeInsert))
	assert.True(t, ModeVisualBlock.IsVisual())
	assert.False(t, ModeReplace.IsVisual())
}
