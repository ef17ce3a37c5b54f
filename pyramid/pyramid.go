// Package pyramid implements regular, multi-resolution tile pyramids with
// metatiling, including the geodetic and mercator well-known grids.
package pyramid

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
	"github.com/mapchete/mapchete/geo"
)

// GridType discriminates the well-known grids from user-defined ones.
// Switches over GridType carry a default branch returning an error so that a
// new grid type surfaces as a compile- or test-time change, not silent
// fallthrough.
type GridType string

const (
	GridGeodetic GridType = "geodetic"
	GridMercator GridType = "mercator"
	GridCustom   GridType = "custom"
)

const mercatorExtent = geo.MercatorExtent

// Shape is the number of tiles per axis at zoom 0, before metatiling.
type Shape struct {
	Width  int
	Height int
}

// Grid is the zoom-0 definition a pyramid is derived from.
type Grid struct {
	Type   GridType
	Shape  Shape
	Bounds geom.Extent
	CRS    crs.CRS
}

// GeodeticGrid is the global lat/lon grid: two tiles wide, one tile high.
func GeodeticGrid() Grid {
	return Grid{
		Type:   GridGeodetic,
		Shape:  Shape{Width: 2, Height: 1},
		Bounds: geom.Extent{-180, -90, 180, 90},
		CRS:    crs.EPSG4326,
	}
}

// MercatorGrid is the global spherical-mercator grid: one tile at zoom 0.
func MercatorGrid() Grid {
	return Grid{
		Type:   GridMercator,
		Shape:  Shape{Width: 1, Height: 1},
		Bounds: geom.Extent{-mercatorExtent, -mercatorExtent, mercatorExtent, mercatorExtent},
		CRS:    crs.EPSG3857,
	}
}

// CustomGrid describes a non-global grid in an arbitrary CRS.
func CustomGrid(shape Shape, bounds geom.Extent, c crs.CRS) Grid {
	return Grid{Type: GridCustom, Shape: shape, Bounds: bounds, CRS: c}
}

// GridFromType returns the well-known grid for the given type. Custom grids
// have no canonical definition and must be built with CustomGrid.
func GridFromType(gridType GridType) (Grid, error) {
	switch gridType {
	case GridGeodetic:
		return GeodeticGrid(), nil
	case GridMercator:
		return MercatorGrid(), nil
	case GridCustom:
		return Grid{}, mcerrors.Config("custom grids need an explicit definition")
	default:
		return Grid{}, mcerrors.Configf("unknown grid type %q", gridType)
	}
}

func (g Grid) validate() error {
	if g.Shape.Width < 1 || g.Shape.Height < 1 {
		return mcerrors.Configf("grid shape must be at least 1x1, got %vx%v", g.Shape.Width, g.Shape.Height)
	}
	if g.Bounds.MinX() >= g.Bounds.MaxX() || g.Bounds.MinY() >= g.Bounds.MaxY() {
		return mcerrors.Configf("grid bounds are degenerate: %v", g.Bounds)
	}
	return nil
}

// DefaultTileSize is the edge length in pixels of an unmetatiled tile.
const DefaultTileSize = 256

// TilePyramid is a tile grid over all zoom levels with a fixed metatiling
// factor. Tile counts per axis double with each zoom step.
type TilePyramid struct {
	Grid       Grid
	Metatiling int
	TileSize   int
}

// New builds a pyramid over the given grid. metatiling must be a power of two
// between 1 and 512.
func New(grid Grid, metatiling int) (TilePyramid, error) {
	if err := grid.validate(); err != nil {
		return TilePyramid{}, err
	}
	if metatiling < 1 || metatiling > 512 || metatiling&(metatiling-1) != 0 {
		return TilePyramid{}, mcerrors.Configf("metatiling must be a power of two between 1 and 512, got %v", metatiling)
	}
	return TilePyramid{Grid: grid, Metatiling: metatiling, TileSize: DefaultTileSize}, nil
}

func (tp TilePyramid) String() string {
	return fmt.Sprintf("TilePyramid(%v, metatiling=%v)", tp.Grid.Type, tp.Metatiling)
}

func (tp TilePyramid) CRS() crs.CRS {
	return tp.Grid.CRS
}

// Bounds returns the overall pyramid bounds in the grid CRS.
func (tp TilePyramid) Bounds() geo.Bounds {
	return geo.NewBounds(tp.Left(), tp.Bottom(), tp.Right(), tp.Top(), tp.Grid.CRS)
}

func (tp TilePyramid) Left() float64   { return tp.Grid.Bounds.MinX() }
func (tp TilePyramid) Bottom() float64 { return tp.Grid.Bounds.MinY() }
func (tp TilePyramid) Right() float64  { return tp.Grid.Bounds.MaxX() }
func (tp TilePyramid) Top() float64    { return tp.Grid.Bounds.MaxY() }

func (tp TilePyramid) XSize() float64 { return tp.Right() - tp.Left() }
func (tp TilePyramid) YSize() float64 { return tp.Top() - tp.Bottom() }

// MatrixWidth is the number of tile columns at a zoom level.
func (tp TilePyramid) MatrixWidth(zoom int) int {
	width := int(math.Ceil(float64(tp.Grid.Shape.Width) * math.Exp2(float64(zoom)) / float64(tp.Metatiling)))
	if width < 1 {
		return 1
	}
	return width
}

// MatrixHeight is the number of tile rows at a zoom level.
func (tp TilePyramid) MatrixHeight(zoom int) int {
	height := int(math.Ceil(float64(tp.Grid.Shape.Height) * math.Exp2(float64(zoom)) / float64(tp.Metatiling)))
	if height < 1 {
		return 1
	}
	return height
}

// TileWidth is the tile width in pixels at a zoom level. A metatile never
// grows beyond the full matrix, so at low zooms the width is clipped.
func (tp TilePyramid) TileWidth(zoom int) int {
	matrixPixel := int(math.Exp2(float64(zoom))) * tp.TileSize * tp.Grid.Shape.Width
	tilePixel := tp.TileSize * tp.Metatiling
	if tilePixel > matrixPixel {
		return matrixPixel
	}
	return tilePixel
}

// TileHeight is the tile height in pixels at a zoom level.
func (tp TilePyramid) TileHeight(zoom int) int {
	matrixPixel := int(math.Exp2(float64(zoom))) * tp.TileSize * tp.Grid.Shape.Height
	tilePixel := tp.TileSize * tp.Metatiling
	if tilePixel > matrixPixel {
		return matrixPixel
	}
	return tilePixel
}

// PixelXSize is the width of one pixel in CRS units at a zoom level.
func (tp TilePyramid) PixelXSize(zoom int) float64 {
	return tp.XSize() / (float64(tp.Grid.Shape.Width) * math.Exp2(float64(zoom)) * float64(tp.TileSize))
}

// PixelYSize is the height of one pixel in CRS units at a zoom level.
func (tp TilePyramid) PixelYSize(zoom int) float64 {
	return tp.YSize() / (float64(tp.Grid.Shape.Height) * math.Exp2(float64(zoom)) * float64(tp.TileSize))
}

// Equal reports whether two pyramids describe the same tiling.
func (tp TilePyramid) Equal(other TilePyramid) bool {
	return tp.Grid.Type == other.Grid.Type &&
		tp.Grid.Shape == other.Grid.Shape &&
		tp.Grid.Bounds == other.Grid.Bounds &&
		tp.Grid.CRS.Equal(other.Grid.CRS) &&
		tp.Metatiling == other.Metatiling &&
		tp.TileSize == other.TileSize
}

// Tile is a tile address within a pyramid.
type Tile struct {
	Zoom int
	Row  int
	Col  int
}

func (t Tile) String() string {
	return fmt.Sprintf("Tile(%v, %v, %v)", t.Zoom, t.Row, t.Col)
}

// Tile returns the tile at the given address, validating it against the
// matrix dimensions.
func (tp TilePyramid) Tile(zoom, row, col int) (Tile, error) {
	if zoom < 0 {
		return Tile{}, mcerrors.Configf("zoom must not be negative, got %v", zoom)
	}
	if row < 0 || row >= tp.MatrixHeight(zoom) {
		return Tile{}, mcerrors.Configf("row %v out of range at zoom %v", row, zoom)
	}
	if col < 0 || col >= tp.MatrixWidth(zoom) {
		return Tile{}, mcerrors.Configf("col %v out of range at zoom %v", col, zoom)
	}
	return Tile{Zoom: zoom, Row: row, Col: col}, nil
}

// OnEdgeUse decides which tile a coordinate exactly on a tile boundary
// belongs to: the first letter picks the column side (left or right of the
// edge), the second the row side (top or bottom).
type OnEdgeUse string

const (
	EdgeRightBottom OnEdgeUse = "rb"
	EdgeLeftTop     OnEdgeUse = "lt"
	EdgeRightTop    OnEdgeUse = "rt"
	EdgeLeftBottom  OnEdgeUse = "lb"
)

// TileFromXY locates the tile containing a point in pyramid CRS coordinates.
func (tp TilePyramid) TileFromXY(pt geom.Point, zoom int, onEdge OnEdgeUse) (Tile, error) {
	switch onEdge {
	case EdgeRightBottom, EdgeLeftTop, EdgeRightTop, EdgeLeftBottom:
	default:
		return Tile{}, mcerrors.Configf("invalid on-edge policy %q", onEdge)
	}

	tileYSize := tp.PixelYSize(zoom) * float64(tp.TileHeight(zoom))
	row := int((tp.Top() - pt.Y()) / tileYSize)
	if (onEdge == EdgeRightTop || onEdge == EdgeLeftTop) && math.Mod(tp.Top()-pt.Y(), tileYSize) == 0 {
		row--
	}

	tileXSize := tp.PixelXSize(zoom) * float64(tp.TileWidth(zoom))
	col := int((pt.X() - tp.Left()) / tileXSize)
	if (onEdge == EdgeLeftBottom || onEdge == EdgeLeftTop) && math.Mod(pt.X()-tp.Left(), tileXSize) == 0 {
		col--
	}

	tile, err := tp.Tile(zoom, row, col)
	if err != nil {
		return Tile{}, mcerrors.Configf("no tile at %v/%v for point %v", zoom, onEdge, pt.XY())
	}
	return tile, nil
}
