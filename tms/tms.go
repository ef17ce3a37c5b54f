// Package tms models OGC Tile Matrix Sets as embedded in STAC tiled-assets
// items and converts them from and to tile pyramids.
// See https://www.ogc.org/standard/tms/
package tms

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
)

// Well-known tile matrix set identifiers.
const (
	WorldCRS84Quad  = "WorldCRS84Quad"
	WebMercatorQuad = "WebMercatorQuad"
	CustomQuad      = "custom"
)

// Well-known scale set URLs.
const (
	WKSSGoogleCRS84Quad      = "http://www.opengis.net/def/wkss/OGC/1.0/GoogleCRS84Quad"
	WKSSGoogleMapsCompatible = "http://www.opengis.net/def/wkss/OGC/1.0/GoogleMapsCompatible"
)

// CRS84URI is the OGC URI of the geographic CRS84 system used by WorldCRS84Quad.
const CRS84URI = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// TileMatrix describes one zoom level of a TileMatrixSet.
type TileMatrix struct {
	Type string `default:"TileMatrixType" json:"type,omitempty"`
	// Identifier is the zoom level rendered as a string
	Identifier       string  `validate:"required" json:"identifier"`
	ScaleDenominator float64 `validate:"required,gt=0" json:"scaleDenominator"`
	// Position of the top-left corner of the (0, 0) tile in CRS coordinates
	TopLeftCorner []float64 `validate:"required,len=2" json:"topLeftCorner"`
	// Tile dimensions in pixels
	TileWidth  uint `validate:"required,min=1" json:"tileWidth"`
	TileHeight uint `validate:"required,min=1" json:"tileHeight"`
	// Matrix dimensions in tiles
	MatrixWidth  uint `validate:"required,min=1" json:"matrixWidth"`
	MatrixHeight uint `validate:"required,min=1" json:"matrixHeight"`
}

// Zoom parses the zoom level from the identifier.
func (tm *TileMatrix) Zoom() (int, error) {
	zoom, err := strconv.Atoi(tm.Identifier)
	if err != nil {
		return 0, fmt.Errorf("only integer-like identifiers are supported for tile matrices: %w", err)
	}
	return zoom, nil
}

func (tm *TileMatrix) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(tm, data)
}

func (tm *TileMatrix) UnmarshalJSONFromMap(data interface{}) error {
	err := defaults.Set(tm)
	if err != nil {
		return err
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`tile matrix data is not a map but a %T`, data)
	}

	_, err = marshmallow.UnmarshalFromJSONMap(dataMap, tm, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tm)
}

// BoundingBox is the minimum bounding rectangle surrounding a tile matrix
// set, in the CRS named by its crs property.
type BoundingBox struct {
	Type        string    `default:"BoundingBoxType" json:"type,omitempty"`
	CRS         string    `validate:"required" json:"crs"`
	LowerCorner []float64 `validate:"required,len=2" json:"lowerCorner"`
	UpperCorner []float64 `validate:"required,len=2" json:"upperCorner"`
}

// TileMatrixSet is the tiled-assets flavored description of a tile pyramid:
// a named CRS plus one TileMatrix per zoom level.
type TileMatrixSet struct {
	Type  string `default:"TileMatrixSetType" json:"type,omitempty"`
	Title string `json:"title,omitempty"`
	// Identifier is one of the well-known identifiers or "custom"
	Identifier        string       `validate:"required" json:"identifier"`
	SupportedCRS      string       `validate:"required" json:"supportedCRS"`
	WellKnownScaleSet string       `validate:"omitempty,uri" json:"wellKnownScaleSet,omitempty"`
	BoundingBox       *BoundingBox `json:"boundingBox,omitempty"`
	// TileMatrix entries, ascending by zoom level
	TileMatrix []TileMatrix `validate:"required,min=1" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	tileMatrices := make([]TileMatrix, len(tms.TileMatrix))
	copy(tileMatrices, tms.TileMatrix)
	sort.Slice(tileMatrices, func(i, j int) bool {
		iID, _ := strconv.ParseInt(tileMatrices[i].Identifier, 10, 64)
		jID, _ := strconv.ParseInt(tileMatrices[j].Identifier, 10, 64)
		return iID < jID
	})
	return json.Marshal(struct {
		TileMatrixSet                  // not a pointer, because it would cause recursion to this function
		SpecialTileMatrix []TileMatrix `json:"tileMatrix"`
	}{
		TileMatrixSet:     *tms,
		SpecialTileMatrix: tileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(tms, data)
}

func (tms *TileMatrixSet) UnmarshalJSONFromMap(data interface{}) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`tile matrix set data is not a map but a %T`, data)
	}

	specials, err := marshmallow.UnmarshalFromJSONMap(dataMap, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	rawTileMatrices, ok := specials["tileMatrix"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrix"`)
	}
	tms.TileMatrix, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) ([]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrix" should be an array`)
	}
	tileMatrices := make([]TileMatrix, 0, len(rawTileMatricesList))
	for _, rawTileMatrix := range rawTileMatricesList {
		var tileMatrix TileMatrix
		err := tileMatrix.UnmarshalJSONFromMap(rawTileMatrix)
		if err != nil {
			return nil, err
		}
		if _, err := tileMatrix.Zoom(); err != nil {
			return nil, err
		}
		tileMatrices = append(tileMatrices, tileMatrix)
	}
	sort.Slice(tileMatrices, func(i, j int) bool {
		iZoom, _ := tileMatrices[i].Zoom()
		jZoom, _ := tileMatrices[j].Zoom()
		return iZoom < jZoom
	})
	return tileMatrices, nil
}

func UnmarshalJSONMapUsingUnmarshalJSONFromMap(target marshmallow.UnmarshalerFromJSONMap, data []byte) error {
	var dataMap map[string]interface{}
	err := json.Unmarshal(data, &dataMap)
	if err != nil {
		return err
	}
	return target.UnmarshalJSONFromMap(dataMap)
}
