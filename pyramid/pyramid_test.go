package pyramid

import (
	"fmt"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/require"

	"github.com/mapchete/mapchete/crs"
)

func mustPyramid(t *testing.T, gridType GridType, metatiling int) TilePyramid {
	t.Helper()
	grid, err := GridFromType(gridType)
	require.NoError(t, err)
	tp, err := New(grid, metatiling)
	require.NoError(t, err)
	return tp
}

func TestMatrixDimensions(t *testing.T) {
	tests := []struct {
		gridType     GridType
		metatiling   int
		zoom         int
		matrixWidth  int
		matrixHeight int
	}{
		{GridGeodetic, 1, 0, 2, 1},
		{GridGeodetic, 1, 1, 4, 2},
		{GridGeodetic, 1, 6, 128, 64},
		{GridGeodetic, 2, 0, 1, 1},
		{GridGeodetic, 2, 6, 64, 32},
		{GridGeodetic, 64, 3, 1, 1},
		{GridMercator, 1, 0, 1, 1},
		{GridMercator, 1, 5, 32, 32},
		{GridMercator, 4, 5, 8, 8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/mt%v/z%v", tt.gridType, tt.metatiling, tt.zoom), func(t *testing.T) {
			tp := mustPyramid(t, tt.gridType, tt.metatiling)
			require.Equal(t, tt.matrixWidth, tp.MatrixWidth(tt.zoom))
			require.Equal(t, tt.matrixHeight, tp.MatrixHeight(tt.zoom))
		})
	}
}

func TestTileDimensionsClippedToGrid(t *testing.T) {
	tp := mustPyramid(t, GridGeodetic, 2)
	// at zoom 0 a 2x metatile would be taller than the whole grid
	require.Equal(t, 512, tp.TileWidth(0))
	require.Equal(t, 256, tp.TileHeight(0))
	// from zoom 1 on the full metatile fits
	require.Equal(t, 512, tp.TileWidth(1))
	require.Equal(t, 512, tp.TileHeight(1))
}

func TestPixelSize(t *testing.T) {
	tp := mustPyramid(t, GridGeodetic, 1)
	require.InDelta(t, 360.0/(2*64*256), tp.PixelXSize(6), 1e-15)
	require.Equal(t, tp.PixelXSize(3), tp.PixelYSize(3))

	mercator := mustPyramid(t, GridMercator, 1)
	require.InDelta(t, 2*20037508.3427892/256, mercator.PixelXSize(0), 1e-9)
}

func TestNewRejectsInvalidMetatiling(t *testing.T) {
	grid := GeodeticGrid()
	for _, metatiling := range []int{0, -1, 3, 1024} {
		_, err := New(grid, metatiling)
		require.Error(t, err, "metatiling %v", metatiling)
	}
	for metatiling := 1; metatiling <= 512; metatiling *= 2 {
		_, err := New(grid, metatiling)
		require.NoError(t, err)
	}
}

func TestGridFromType(t *testing.T) {
	_, err := GridFromType(GridCustom)
	require.Error(t, err)
	_, err = GridFromType(GridType("hexagonal"))
	require.Error(t, err)
}

func TestPyramidBounds(t *testing.T) {
	tp := mustPyramid(t, GridMercator, 1)
	bounds := tp.Bounds()
	require.True(t, bounds.CRS.Equal(crs.EPSG3857))
	require.Equal(t, -bounds.Left, bounds.Right)
	require.Equal(t, bounds.Left, bounds.Bottom)
}

func TestTileFromXY(t *testing.T) {
	tp := mustPyramid(t, GridGeodetic, 1)

	// pyramid corners with the matching edge policies
	minTile, err := tp.TileFromXY(geom.Point{-180, 90}, 1, EdgeRightBottom)
	require.NoError(t, err)
	require.Equal(t, Tile{Zoom: 1, Row: 0, Col: 0}, minTile)

	maxTile, err := tp.TileFromXY(geom.Point{180, -90}, 1, EdgeLeftTop)
	require.NoError(t, err)
	require.Equal(t, Tile{Zoom: 1, Row: 1, Col: 3}, maxTile)

	// a coordinate exactly on an inner tile boundary
	onEdge, err := tp.TileFromXY(geom.Point{0, 0}, 1, EdgeRightBottom)
	require.NoError(t, err)
	require.Equal(t, Tile{Zoom: 1, Row: 1, Col: 2}, onEdge)

	onEdge, err = tp.TileFromXY(geom.Point{0, 0}, 1, EdgeLeftTop)
	require.NoError(t, err)
	require.Equal(t, Tile{Zoom: 1, Row: 0, Col: 1}, onEdge)

	// outside the pyramid
	_, err = tp.TileFromXY(geom.Point{200, 0}, 1, EdgeRightBottom)
	require.Error(t, err)

	_, err = tp.TileFromXY(geom.Point{0, 0}, 1, OnEdgeUse("xx"))
	require.Error(t, err)
}

func TestTileValidation(t *testing.T) {
	tp := mustPyramid(t, GridGeodetic, 1)
	_, err := tp.Tile(0, 0, 1)
	require.NoError(t, err)
	_, err = tp.Tile(0, 1, 0)
	require.Error(t, err)
	_, err = tp.Tile(0, 0, 2)
	require.Error(t, err)
	_, err = tp.Tile(-1, 0, 0)
	require.Error(t, err)
}

func TestPyramidEqual(t *testing.T) {
	require.True(t, mustPyramid(t, GridGeodetic, 4).Equal(mustPyramid(t, GridGeodetic, 4)))
	require.False(t, mustPyramid(t, GridGeodetic, 4).Equal(mustPyramid(t, GridGeodetic, 8)))
	require.False(t, mustPyramid(t, GridGeodetic, 1).Equal(mustPyramid(t, GridMercator, 1)))
}

func TestZoomRange(t *testing.T) {
	levels, err := ZoomRange(0, 6)
	require.NoError(t, err)
	require.Equal(t, ZoomLevels{0, 1, 2, 3, 4, 5, 6}, levels)
	require.Equal(t, 0, levels.Min())
	require.Equal(t, 6, levels.Max())

	_, err = ZoomRange(5, 2)
	require.Error(t, err)
	_, err = ZoomRange(-1, 2)
	require.Error(t, err)
}

func TestZoomLevelsFromSlice(t *testing.T) {
	levels, err := ZoomLevelsFromSlice([]int{6, 3, 3, 0})
	require.NoError(t, err)
	require.Equal(t, ZoomLevels{0, 3, 6}, levels)

	_, err = ZoomLevelsFromSlice([]int{0, -2})
	require.Error(t, err)
}

func TestZoomLevelsUnion(t *testing.T) {
	levels, err := ZoomRange(0, 4)
	require.NoError(t, err)

	// idempotent
	require.Equal(t, levels, levels.Union(ZoomLevels{2, 3}))
	require.Equal(t, levels, levels.Union(levels))

	// monotonic
	extended := levels.Union(ZoomLevels{6, 5})
	require.Equal(t, ZoomLevels{0, 1, 2, 3, 4, 5, 6}, extended)
	require.True(t, extended.Contains(6))
	require.False(t, extended.Contains(7))
}
