package changedetect

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/core"
)

func solidJPEG(t *testing.T, c color.Gray) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func halfSplitJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.SetGray(x, y, color.Gray{Y: 20})
			} else {
				img.SetGray(x, y, color.Gray{Y: 235})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestComputeHashIdenticalFramesZeroDistance(t *testing.T) {
	data := solidJPEG(t, color.Gray{Y: 128})
	h1, ok1 := ComputeHash(data)
	h2, ok2 := ComputeHash(data)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 0, Distance(h1, h2))
}

func TestComputeHashDecodeFailure(t *testing.T) {
	_, ok := ComputeHash([]byte("not a jpeg"))
	assert.False(t, ok)
}

func TestDistanceDetectsLargeShift(t *testing.T) {
	dark := solidJPEG(t, color.Gray{Y: 10})
	bright := solidJPEG(t, color.Gray{Y: 245})
	split := halfSplitJPEG(t)

	hDark, _ := ComputeHash(dark)
	hBright, _ := ComputeHash(bright)
	hSplit, _ := ComputeHash(split)

	// A solid frame's grid is uniform relative to its own mean, so a
	// plain brightness shift alone shouldn't register as a big Hamming
	// distance; a half-dark/half-bright frame should differ sharply from
	// either uniform frame.
	assert.Equal(t, 0, Distance(hDark, hBright))
	assert.Greater(t, Distance(hDark, hSplit), 0)
}

func TestClassifyThresholds(t *testing.T) {
	th := Thresholds{Minor: 5, Moderate: 12, Major: 25}

	assert.Equal(t, core.ChangeNone, Classify(0, th))
	assert.Equal(t, core.ChangeNone, Classify(4, th))
	assert.Equal(t, core.ChangeNone, Classify(5, th))
	assert.Equal(t, core.ChangeMinor, Classify(11, th))
	assert.Equal(t, core.ChangeMinor, Classify(12, th))
	assert.Equal(t, core.ChangeModerate, Classify(24, th))
	assert.Equal(t, core.ChangeModerate, Classify(25, th))
	assert.Equal(t, core.ChangeMajor, Classify(64, th))
}

func TestCompareDecodeFailureIsMajor(t *testing.T) {
	th := Thresholds{Minor: 5, Moderate: 12, Major: 25}
	prev := core.Frame{Data: solidJPEG(t, color.Gray{Y: 128})}
	next := core.Frame{Data: []byte("garbage")}

	result := Compare(prev, next, th)
	assert.Equal(t, core.ChangeMajor, result.Level)
}

func TestCompareNoChange(t *testing.T) {
	th := Thresholds{Minor: 5, Moderate: 12, Major: 25}
	data := solidJPEG(t, color.Gray{Y: 100})
	prev := core.Frame{Data: data}
	next := core.Frame{Data: data}

	result := Compare(prev, next, th)
	assert.Equal(t, core.ChangeNone, result.Level)
	assert.Equal(t, 0, result.Distance)
}
