// Package geo provides the Bounds value type and reprojection between the
// coordinate reference systems this module deals with. Only the identity
// transform and the geographic <-> web-mercator pair are supported; bounds in
// any other CRS cannot be reprojected and operations needing geographic
// coordinates fail with a ReprojectionError.
package geo

import (
	"fmt"

	"github.com/go-spatial/geom"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
)

// Bounds is a (left, bottom, right, top) rectangle in a given CRS.
type Bounds struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
	CRS    crs.CRS
}

func NewBounds(left, bottom, right, top float64, c crs.CRS) Bounds {
	return Bounds{Left: left, Bottom: bottom, Right: right, Top: top, CRS: c}
}

func (b Bounds) Validate() error {
	if b.Left > b.Right {
		return mcerrors.Configf("invalid bounds: left %v > right %v", b.Left, b.Right)
	}
	if b.Bottom > b.Top {
		return mcerrors.Configf("invalid bounds: bottom %v > top %v", b.Bottom, b.Top)
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("Bounds(%v, %v, %v, %v, %v)", b.Left, b.Bottom, b.Right, b.Top, b.CRS)
}

// Extent returns the bounds as a geom.Extent ([minx, miny, maxx, maxy]).
func (b Bounds) Extent() geom.Extent {
	return geom.Extent{b.Left, b.Bottom, b.Right, b.Top}
}

// Polygon returns the bounds as a closed exterior ring.
func (b Bounds) Polygon() geom.Polygon {
	return geom.Polygon{{
		{b.Left, b.Bottom},
		{b.Right, b.Bottom},
		{b.Right, b.Top},
		{b.Left, b.Top},
		{b.Left, b.Bottom},
	}}
}

// Union returns the smallest bounds enclosing b and other, in b's CRS.
// other is reprojected first when the two CRS differ.
func (b Bounds) Union(other Bounds) (Bounds, error) {
	if !other.CRS.IsZero() && !b.CRS.Equivalent(other.CRS) {
		reprojected, err := Reproject(other, b.CRS)
		if err != nil {
			return Bounds{}, mcerrors.ReprojectionWrap(err, "cannot union bounds %v with %v", b, other)
		}
		other = reprojected
	}
	return Bounds{
		Left:   min(b.Left, other.Left),
		Bottom: min(b.Bottom, other.Bottom),
		Right:  max(b.Right, other.Right),
		Top:    max(b.Top, other.Top),
		CRS:    b.CRS,
	}, nil
}

// Clamp shrinks b so it never extends beyond limit on any side.
// Both bounds must be in the same CRS.
func (b Bounds) Clamp(limit Bounds) Bounds {
	return Bounds{
		Left:   max(b.Left, limit.Left),
		Bottom: max(b.Bottom, limit.Bottom),
		Right:  min(b.Right, limit.Right),
		Top:    min(b.Top, limit.Top),
		CRS:    b.CRS,
	}
}
