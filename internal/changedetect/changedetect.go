// Package changedetect implements the cheap, local frame-to-frame change
// score (C3) described in spec.md §4.3: a pure function over two frames
// producing a Hamming distance and a classified ChangeLevel, with no
// network or VLM involvement.
//
// No perceptual-hashing library appears anywhere in the retrieved
// example pack, so this is built directly on the standard library's
// image/color decoding (see DESIGN.md) using the average-hash technique:
// downscale to a small fixed grid, threshold each pixel against the
// grid's mean luminance, and compare bitsets with Hamming distance.
package changedetect

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"math/bits"

	"github.com/physical-mcp/engine/internal/core"
)

const (
	gridSize = 8
	gridArea = gridSize * gridSize // 64 bits, fits in a uint64
)

// Thresholds maps Hamming distance to spec.md's four-level classification.
type Thresholds struct {
	Minor    int
	Moderate int
	Major    int
}

// Hash is an average-hash fingerprint of one frame's luminance grid.
type Hash uint64

// ComputeHash downsamples frame data to an 8x8 grayscale grid and returns
// the average-hash bitset. Decode failures yield a zero hash and false;
// callers should treat that as "no signal" rather than "no change".
func ComputeHash(data []byte) (Hash, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0, false
	}

	var lum [gridArea]int
	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			px := bounds.Min.X + (gx*w)/gridSize
			py := bounds.Min.Y + (gy*h)/gridSize
			r, g, b, _ := img.At(px, py).RGBA()
			// Rec. 601 luma weights over channel values reduced to 8 bits.
			y := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			lum[gy*gridSize+gx] = y
		}
	}

	sum := 0
	for _, v := range lum {
		sum += v
	}
	mean := sum / gridArea

	var h64 uint64
	for i, v := range lum {
		if v >= mean {
			h64 |= 1 << uint(i)
		}
	}
	return Hash(h64), true
}

// Distance returns the Hamming distance between two hashes, 0-64.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// Classify converts a Hamming distance into a ChangeLevel using t.
// Boundaries are lower-inclusive: a distance exactly equal to a
// threshold belongs to the lower level (spec §4.3, §8).
func Classify(distance int, t Thresholds) core.ChangeLevel {
	switch {
	case distance <= t.Minor:
		return core.ChangeNone
	case distance <= t.Moderate:
		return core.ChangeMinor
	case distance <= t.Major:
		return core.ChangeModerate
	default:
		return core.ChangeMajor
	}
}

// Compare scores the transition from prev to next and classifies it. If
// either frame fails to decode, the result is a MAJOR change: a camera
// producing unreadable frames is itself worth surfacing, not silently
// skipping.
func Compare(prev, next core.Frame, t Thresholds) core.ChangeResult {
	prevHash, prevOK := ComputeHash(prev.Data)
	nextHash, nextOK := ComputeHash(next.Data)
	if !prevOK || !nextOK {
		return core.ChangeResult{
			Distance:    gridArea,
			Level:       core.ChangeMajor,
			Description: "frame decode failed",
		}
	}

	d := Distance(prevHash, nextHash)
	return core.ChangeResult{
		Distance:    d,
		Level:       Classify(d, t),
		Description: describeLevel(Classify(d, t)),
	}
}

func describeLevel(level core.ChangeLevel) string {
	switch level {
	case core.ChangeMajor:
		return "major scene change"
	case core.ChangeModerate:
		return "moderate scene change"
	case core.ChangeMinor:
		return "minor scene change"
	default:
		return "no significant change"
	}
}
