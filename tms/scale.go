package tms

import "github.com/mapchete/mapchete/pyramid"

const (
	// StandardizedRenderingPixelSize is the OGC-assumed physical size of one
	// screen pixel in meters (0.28 mm). Scale denominators relate ground
	// resolution to this pixel size.
	StandardizedRenderingPixelSize = 0.00028

	// MetersPerDegree at the equator, used to convert geodetic pixel sizes
	// into meters.
	MetersPerDegree = 111319.4907932732
)

// Scale returns the OGC scale denominator for a pixel size in grid CRS units.
func Scale(gridType pyramid.GridType, pixelSize float64) float64 {
	return unitToMeter(gridType) * pixelSize / StandardizedRenderingPixelSize
}

func unitToMeter(gridType pyramid.GridType) float64 {
	switch gridType {
	case pyramid.GridGeodetic:
		return MetersPerDegree
	case pyramid.GridMercator:
		return 1
	default:
		return 1
	}
}
