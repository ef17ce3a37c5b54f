package geo

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
)

const (
	// Half the circumference of the spherical-mercator earth, the extent of
	// EPSG:3857 on both axes.
	MercatorExtent = 20037508.3427892

	// Latitudes beyond this limit have no spherical-mercator representation.
	MercatorLatLimit = 85.0511287798066
)

// ReprojectPoint transforms a single point between two CRS. Supported are
// identity (equivalent CRS) and the EPSG:4326 <-> EPSG:3857 pair; any other
// combination fails with a ReprojectionError.
func ReprojectPoint(pt geom.Point, src, dst crs.CRS) (geom.Point, error) {
	switch {
	case src.Equivalent(dst):
		return pt, nil
	case src.IsGeographic() && dst.Equal(crs.EPSG3857):
		return lonLatToMercator(pt), nil
	case src.Equal(crs.EPSG3857) && dst.IsGeographic():
		return mercatorToLonLat(pt), nil
	}
	return geom.Point{}, mcerrors.Reprojectionf("no transformation from %v to %v", src, dst)
}

// Reproject transforms bounds between two CRS by transforming the rectangle
// corners and taking their envelope. Both supported transformations map
// axis-aligned rectangles onto axis-aligned rectangles, so the envelope is
// exact.
func Reproject(b Bounds, dst crs.CRS) (Bounds, error) {
	if b.CRS.IsZero() {
		return Bounds{}, mcerrors.Configf("cannot reproject bounds without a CRS: %v", b)
	}
	if b.CRS.Equivalent(dst) {
		out := b
		out.CRS = dst
		return out, nil
	}
	corners := [4]geom.Point{
		{b.Left, b.Bottom},
		{b.Right, b.Bottom},
		{b.Right, b.Top},
		{b.Left, b.Top},
	}
	out := Bounds{Left: math.Inf(1), Bottom: math.Inf(1), Right: math.Inf(-1), Top: math.Inf(-1), CRS: dst}
	for _, corner := range corners {
		pt, err := ReprojectPoint(corner, b.CRS, dst)
		if err != nil {
			return Bounds{}, mcerrors.ReprojectionWrap(err, "cannot reproject bounds %v to %v", b, dst)
		}
		out.Left = min(out.Left, pt.X())
		out.Bottom = min(out.Bottom, pt.Y())
		out.Right = max(out.Right, pt.X())
		out.Top = max(out.Top, pt.Y())
	}
	return out, nil
}

func lonLatToMercator(pt geom.Point) geom.Point {
	lon := pt.X()
	lat := math.Max(-MercatorLatLimit, math.Min(MercatorLatLimit, pt.Y()))
	x := lon * MercatorExtent / 180
	y := math.Log(math.Tan((90+lat)*math.Pi/360)) / math.Pi * MercatorExtent
	return geom.Point{x, y}
}

func mercatorToLonLat(pt geom.Point) geom.Point {
	lon := pt.X() * 180 / MercatorExtent
	lat := math.Atan(math.Exp(pt.Y()*math.Pi/MercatorExtent))*360/math.Pi - 90
	return geom.Point{lon, lat}
}
