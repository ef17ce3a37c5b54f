package tms

import (
	"strconv"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog/log"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
	"github.com/mapchete/mapchete/pyramid"
)

// metatilingCandidates are the settings tried when inverting a tile matrix
// set back into a pyramid: the power-of-two sequence 1, 2, 4, ..., 512.
func metatilingCandidates() []int {
	candidates := make([]int, 0, 10)
	for m := 1; m <= 512; m *= 2 {
		candidates = append(candidates, m)
	}
	return candidates
}

// FromTilePyramid renders a pyramid and a set of zoom levels as a
// standards-compliant tile matrix set with one TileMatrix per zoom level.
// Tile and matrix dimensions are taken from the pyramid, never recomputed.
func FromTilePyramid(tp pyramid.TilePyramid, zoomLevels pyramid.ZoomLevels) (TileMatrixSet, error) {
	var tms TileMatrixSet

	switch tp.Grid.Type {
	case pyramid.GridGeodetic:
		tms.Identifier = WorldCRS84Quad
		tms.Title = "CRS84 for the World"
		tms.SupportedCRS = CRS84URI
		tms.WellKnownScaleSet = WKSSGoogleCRS84Quad
	case pyramid.GridMercator:
		uri, err := crs.ToURI(crs.EPSG3857, 0)
		if err != nil {
			return tms, err
		}
		tms.Identifier = WebMercatorQuad
		tms.Title = "Google Maps Compatible for the World"
		tms.SupportedCRS = uri
		tms.WellKnownScaleSet = WKSSGoogleMapsCompatible
	default:
		urn, err := crs.ToURN(tp.CRS())
		if err != nil {
			return tms, err
		}
		tms.Identifier = CustomQuad
		tms.SupportedCRS = urn
	}

	bounds := tp.Bounds()
	if bounds.CRS.IsZero() {
		return tms, mcerrors.Config("cannot build bounding box for bounds without CRS")
	}
	tms.BoundingBox = &BoundingBox{
		CRS:         tms.SupportedCRS,
		LowerCorner: []float64{bounds.Left, bounds.Bottom},
		UpperCorner: []float64{bounds.Right, bounds.Top},
	}

	tms.TileMatrix = make([]TileMatrix, 0, len(zoomLevels))
	for _, zoom := range zoomLevels {
		tms.TileMatrix = append(tms.TileMatrix, TileMatrix{
			Identifier:       strconv.Itoa(zoom),
			ScaleDenominator: Scale(tp.Grid.Type, tp.PixelXSize(zoom)),
			TopLeftCorner:    []float64{tp.Left(), tp.Top()},
			TileWidth:        uint(tp.TileWidth(zoom)),
			TileHeight:       uint(tp.TileHeight(zoom)),
			MatrixWidth:      uint(tp.MatrixWidth(zoom)),
			MatrixHeight:     uint(tp.MatrixHeight(zoom)),
		})
	}

	if err := defaults.Set(&tms); err != nil {
		return tms, err
	}
	return tms, nil
}

// ToTilePyramid reconstructs the pyramid a tile matrix set was built from.
// The grid type follows from the well-known scale set; the metatiling setting
// is inferred by checking each candidate against every TileMatrix entry. The
// pixelbuffer cannot be reconstructed and is not part of the result.
func (tms *TileMatrixSet) ToTilePyramid() (pyramid.TilePyramid, error) {
	var gridType pyramid.GridType
	switch tms.WellKnownScaleSet {
	case WKSSGoogleCRS84Quad:
		gridType = pyramid.GridGeodetic
	case WKSSGoogleMapsCompatible:
		gridType = pyramid.GridMercator
	default:
		return pyramid.TilePyramid{}, mcerrors.Configf(
			"cannot create tile pyramid from unknown scale set %q", tms.WellKnownScaleSet,
		)
	}
	grid, err := pyramid.GridFromType(gridType)
	if err != nil {
		return pyramid.TilePyramid{}, err
	}

	var matches []int
	for _, metatiling := range metatilingCandidates() {
		trial, err := pyramid.New(grid, metatiling)
		if err != nil {
			return pyramid.TilePyramid{}, err
		}
		if tms.matchesPyramid(trial) {
			matches = append(matches, metatiling)
		}
	}

	switch len(matches) {
	case 0:
		return pyramid.TilePyramid{}, mcerrors.Config("cannot determine metatiling setting")
	case 1:
	default:
		log.Warn().
			Str("tile_matrix_set", tms.Identifier).
			Ints("candidates", matches).
			Msg("multiple metatiling settings match, using smallest")
	}
	return pyramid.New(grid, matches[0])
}

// matchesPyramid reports whether every TileMatrix entry agrees with the
// trial pyramid's matrix and tile dimensions at its zoom level.
func (tms *TileMatrixSet) matchesPyramid(trial pyramid.TilePyramid) bool {
	for i := range tms.TileMatrix {
		tm := &tms.TileMatrix[i]
		zoom, err := tm.Zoom()
		if err != nil {
			return false
		}
		if int(tm.MatrixWidth) != trial.MatrixWidth(zoom) ||
			int(tm.MatrixHeight) != trial.MatrixHeight(zoom) ||
			int(tm.TileWidth) != trial.TileWidth(zoom) ||
			int(tm.TileHeight) != trial.TileHeight(zoom) {
			return false
		}
	}
	return true
}

// ToZoomLevels collects the zoom levels of all TileMatrix entries.
func (tms *TileMatrixSet) ToZoomLevels() (pyramid.ZoomLevels, error) {
	levels := make([]int, 0, len(tms.TileMatrix))
	for i := range tms.TileMatrix {
		zoom, err := tms.TileMatrix[i].Zoom()
		if err != nil {
			return nil, err
		}
		levels = append(levels, zoom)
	}
	return pyramid.ZoomLevelsFromSlice(levels)
}
