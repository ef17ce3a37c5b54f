package pyramid

import (
	"sort"

	mcerrors "github.com/mapchete/mapchete/errors"
)

// ZoomLevels is a set of non-negative zoom levels, kept as an ascending,
// duplicate-free slice.
type ZoomLevels []int

// ZoomRange returns all zoom levels from minZoom to maxZoom, both inclusive.
func ZoomRange(minZoom, maxZoom int) (ZoomLevels, error) {
	if minZoom < 0 {
		return nil, mcerrors.Configf("zoom levels must not be negative, got %v", minZoom)
	}
	if minZoom > maxZoom {
		return nil, mcerrors.Configf("min zoom %v greater than max zoom %v", minZoom, maxZoom)
	}
	levels := make(ZoomLevels, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		levels = append(levels, z)
	}
	return levels, nil
}

// ZoomLevelsFromSlice normalizes arbitrary input into ascending unique levels.
func ZoomLevelsFromSlice(levels []int) (ZoomLevels, error) {
	seen := make(map[int]struct{}, len(levels))
	out := make(ZoomLevels, 0, len(levels))
	for _, z := range levels {
		if z < 0 {
			return nil, mcerrors.Configf("zoom levels must not be negative, got %v", z)
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	sort.Ints(out)
	return out, nil
}

// Union merges two zoom level sets. The operation is idempotent and the
// result always covers the receiver.
func (zl ZoomLevels) Union(other ZoomLevels) ZoomLevels {
	merged := make([]int, 0, len(zl)+len(other))
	merged = append(merged, zl...)
	merged = append(merged, other...)
	union, _ := ZoomLevelsFromSlice(merged) // inputs are already validated
	return union
}

func (zl ZoomLevels) Contains(zoom int) bool {
	i := sort.SearchInts(zl, zoom)
	return i < len(zl) && zl[i] == zoom
}

func (zl ZoomLevels) Min() int {
	return zl[0]
}

func (zl ZoomLevels) Max() int {
	return zl[len(zl)-1]
}
