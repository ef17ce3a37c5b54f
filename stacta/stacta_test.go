package stacta

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
	"github.com/mapchete/mapchete/geo"
	"github.com/mapchete/mapchete/pyramid"
	"github.com/mapchete/mapchete/storage"
)

func mustPyramid(t *testing.T, gridType pyramid.GridType, metatiling int) pyramid.TilePyramid {
	t.Helper()
	grid, err := pyramid.GridFromType(gridType)
	require.NoError(t, err)
	tp, err := pyramid.New(grid, metatiling)
	require.NoError(t, err)
	return tp
}

func mustZoomRange(t *testing.T, minZoom, maxZoom int) pyramid.ZoomLevels {
	t.Helper()
	levels, err := pyramid.ZoomRange(minZoom, maxZoom)
	require.NoError(t, err)
	return levels
}

// metadata with a fixed start_datetime makes documents reproducible across runs.
func fixedMetadata() map[string]any {
	return map[string]any{
		"properties": map[string]any{"start_datetime": "2022-03-31T00:00:00Z"},
	}
}

func mustItem(t *testing.T, opts ...Option) *Item {
	t.Helper()
	tp := mustPyramid(t, pyramid.GridGeodetic, 1)
	item, err := FromTilePyramid("test-item", tp, mustZoomRange(t, 0, 5),
		append([]Option{WithItemMetadata(fixedMetadata())}, opts...)...)
	require.NoError(t, err)
	return item
}

func TestFromTilePyramidValidation(t *testing.T) {
	tp := mustPyramid(t, pyramid.GridGeodetic, 1)
	_, err := FromTilePyramid("", tp, mustZoomRange(t, 0, 5))
	require.Error(t, err)
	require.True(t, mcerrors.IsConfig(err))

	_, err = FromTilePyramid("no-zooms", tp, nil)
	require.Error(t, err)
	require.True(t, mcerrors.IsConfig(err))
}

func TestAssetTemplateConversion(t *testing.T) {
	item := mustItem(t, WithAssetTemplate("{zoom}/{row}/{col}.{extension}"))
	require.Equal(t, "{TileMatrix}/{TileRow}/{TileCol}.tif", item.AssetTemplate)

	href := item.AssetHref(pyramid.Tile{Zoom: 5, Row: 3, Col: 7})
	require.Equal(t, "5/3/7.tif", href)
}

func TestItemDocumentShape(t *testing.T) {
	item := mustItem(t)
	doc, err := item.ToItemDict()
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data),
		`{"type":"Feature","stac_version":"1.0.0","stac_extensions"`),
		"unexpected document head: %s", string(data)[:80])

	require.Equal(t, []string{
		"https://stac-extensions.github.io/tiled-assets/v1.0.0/schema.json",
	}, item.STACExtensions())

	geometry, err := item.Geometry()
	require.NoError(t, err)
	require.Equal(t, "Polygon", geometry["type"])

	bbox, err := item.BBox()
	require.NoError(t, err)
	require.Equal(t, -180.0, bbox.MinX())
	require.Equal(t, -90.0, bbox.MinY())
	require.Equal(t, 180.0, bbox.MaxX())
	require.Equal(t, 90.0, bbox.MaxY())
}

func TestProperties(t *testing.T) {
	item := mustItem(t)
	properties, err := item.Properties()
	require.NoError(t, err)

	datetime, ok := properties.Get("datetime")
	require.True(t, ok)
	require.Equal(t, "2022-03-31T00:00:00Z", datetime)

	collection, ok := properties.Get("collection")
	require.True(t, ok)
	require.Equal(t, "test-item", collection)

	_, ok = properties.Get("tiles:tile_matrix_sets")
	require.True(t, ok)
	_, ok = properties.Get("eo:bands")
	require.False(t, ok)
}

func TestTileMatrixLinks(t *testing.T) {
	item := mustItem(t)
	properties, err := item.Properties()
	require.NoError(t, err)

	rawLinks, ok := properties.Get("tiles:tile_matrix_links")
	require.True(t, ok)
	links := rawLinks.(map[string]any)["WorldCRS84Quad"].(*orderedmap.OrderedMap[string, any])

	url, ok := links.Get("url")
	require.True(t, ok)
	require.Equal(t, "#WorldCRS84Quad", url)

	rawLimits, ok := links.Get("limits")
	require.True(t, ok)
	limits := rawLimits.(*orderedmap.OrderedMap[string, any])

	rawZoom, ok := limits.Get("1")
	require.True(t, ok)
	zoomLimits := rawZoom.(*orderedmap.OrderedMap[string, any])
	minCol, _ := zoomLimits.Get("min_tile_col")
	maxCol, _ := zoomLimits.Get("max_tile_col")
	minRow, _ := zoomLimits.Get("min_tile_row")
	maxRow, _ := zoomLimits.Get("max_tile_row")
	require.Equal(t, 0, minCol)
	require.Equal(t, 3, maxCol)
	require.Equal(t, 0, minRow)
	require.Equal(t, 1, maxRow)
}

func TestEOBands(t *testing.T) {
	metadata := fixedMetadata()
	metadata["eo:bands"] = []any{map[string]any{"name": "red"}}
	item := mustItem(t, WithItemMetadata(metadata))

	require.Len(t, item.STACExtensions(), 2)
	require.Contains(t, item.STACExtensions()[1], "stac-extensions.github.io/eo/v1.1.0")

	properties, err := item.Properties()
	require.NoError(t, err)
	bands, ok := properties.Get("eo:bands")
	require.True(t, ok)
	require.Len(t, bands, 1)

	entry := item.AssetTemplates()[DefaultAssetTemplateName].(map[string]any)
	require.Contains(t, entry, "eo:bands")
}

func TestFromJSONKeepsEOBands(t *testing.T) {
	metadata := fixedMetadata()
	metadata["eo:bands"] = []any{map[string]any{"name": "red"}}
	item := mustItem(t, WithItemMetadata(metadata))
	require.Len(t, item.STACExtensions(), 2)

	doc, err := item.ToItemDict()
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	require.Len(t, parsed.STACExtensions(), 2)
	require.Contains(t, parsed.STACExtensions()[1], "stac-extensions.github.io/eo/")

	entry := parsed.AssetTemplates()[DefaultAssetTemplateName].(map[string]any)
	require.Contains(t, entry, "eo:bands")

	properties, err := parsed.Properties()
	require.NoError(t, err)
	bands, ok := properties.Get("eo:bands")
	require.True(t, ok)
	require.Len(t, bands, 1)
}

func TestCustomGridItemHasNoGeographicFootprint(t *testing.T) {
	grid := pyramid.CustomGrid(
		pyramid.Shape{Width: 1, Height: 1},
		geom.Extent{0, 0, 1000000, 1000000},
		crs.FromAuthority("EPSG", "32630"),
	)
	tp, err := pyramid.New(grid, 1)
	require.NoError(t, err)
	item, err := FromTilePyramid("custom-grid", tp, mustZoomRange(t, 0, 3),
		WithItemMetadata(fixedMetadata()))
	require.NoError(t, err)

	// the pyramid CRS has no transformation to geographic coordinates
	_, err = item.ToItemDict()
	require.Error(t, err)
	require.True(t, mcerrors.IsReprojection(err))

	_, err = item.BBox()
	require.Error(t, err)
	require.True(t, mcerrors.IsReprojection(err))
}

func TestBoundsClampedToPyramid(t *testing.T) {
	item := mustItem(t, WithBounds(geo.NewBounds(-200, -100, 200, 100, crs.EPSG4326)))
	bbox, err := item.BBox()
	require.NoError(t, err)
	require.Equal(t, -180.0, bbox.MinX())
	require.Equal(t, -90.0, bbox.MinY())
	require.Equal(t, 180.0, bbox.MaxX())
	require.Equal(t, 90.0, bbox.MaxY())
}

func TestExtendIdempotent(t *testing.T) {
	item := mustItem(t, WithBounds(geo.NewBounds(-20, -10, 20, 10, crs.EPSG4326)))
	before, err := item.Fingerprint()
	require.NoError(t, err)

	// already-covered zoom levels and bounds change nothing
	covered := geo.NewBounds(-5, -5, 5, 5, crs.EPSG4326)
	require.NoError(t, item.Extend(pyramid.ZoomLevels{2, 3}, &covered))
	after, err := item.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestExtendMonotonic(t *testing.T) {
	item := mustItem(t, WithBounds(geo.NewBounds(-20, -10, 20, 10, crs.EPSG4326)))
	require.NoError(t, item.Extend(pyramid.ZoomLevels{7, 6}, nil))
	require.Equal(t, mustZoomRange(t, 0, 7), item.ZoomLevels)

	tileMatrixSet, err := item.TileMatrixSet()
	require.NoError(t, err)
	require.Len(t, tileMatrixSet.TileMatrix, 8)

	// bounds only ever grow
	wider := geo.NewBounds(-40, -10, 10, 30, crs.EPSG4326)
	require.NoError(t, item.Extend(nil, &wider))
	require.Equal(t, geo.NewBounds(-40, -10, 20, 30, crs.EPSG4326), *item.Bounds)
}

func TestEqualIgnoresConstructionOrder(t *testing.T) {
	bounds := geo.NewBounds(-20, -10, 20, 10, crs.EPSG4326)
	a := mustItem(t,
		WithBounds(bounds),
		WithAssetTemplate("{zoom}/{row}/{col}.tif"),
		WithMIMEType("image/png"),
	)
	b := mustItem(t,
		WithMIMEType("image/png"),
		WithAssetTemplate("{zoom}/{row}/{col}.tif"),
		WithBounds(bounds),
	)
	equal, err := a.Equal(b)
	require.NoError(t, err)
	require.True(t, equal)

	c := mustItem(t, WithBounds(bounds), WithMIMEType("image/jpeg"))
	equal, err = a.Equal(c)
	require.NoError(t, err)
	require.False(t, equal)
}

func TestEqualAfterParseRoundTrip(t *testing.T) {
	// a parsed item carries its properties in document order, a fresh one in
	// construction order; the normalized fingerprint must not see a difference
	item := mustItem(t)
	doc, err := item.ToItemDict()
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	equal, err := item.Equal(parsed)
	require.NoError(t, err)
	require.True(t, equal)
}

func TestToItemResolvesAssetHrefs(t *testing.T) {
	item := mustItem(t)
	doc, err := item.ToItem("foo/bar.json", "", false)
	require.NoError(t, err)

	absoluteParent, err := filepath.Abs("foo")
	require.NoError(t, err)

	rawTemplates, ok := doc.Get("asset_templates")
	require.True(t, ok)
	entry := rawTemplates.(map[string]any)[DefaultAssetTemplateName].(map[string]any)
	href := entry["href"].(string)
	require.True(t, strings.HasPrefix(href, absoluteParent), "href %q", href)
	require.True(t, strings.HasSuffix(href, "{TileMatrix}/{TileRow}/{TileCol}.tif"), "href %q", href)

	// a self link is appended
	rawLinks, ok := doc.Get("links")
	require.True(t, ok)
	links := rawLinks.([]any)
	require.Len(t, links, 1)
	self := links[0].(map[string]any)
	require.Equal(t, "self", self["rel"])
	require.True(t, strings.HasSuffix(self["href"].(string), "foo/bar.json"))
}

func TestToItemExplicitBasepath(t *testing.T) {
	item := mustItem(t)
	doc, err := item.ToItem("", "s3://bucket/tiles", true)
	require.NoError(t, err)

	rawTemplates, _ := doc.Get("asset_templates")
	entry := rawTemplates.(map[string]any)[DefaultAssetTemplateName].(map[string]any)
	require.Equal(t, "s3://bucket/tiles/{TileMatrix}/{TileRow}/{TileCol}.tif", entry["href"])
}

func TestToItemWithoutBasepath(t *testing.T) {
	item := mustItem(t)
	_, err := item.ToItem("", "", false)
	require.Error(t, err)
	require.True(t, mcerrors.IsConfig(err))
	require.ErrorContains(t, err, "asset_basepath or self_href")
}

func TestFromJSONRoundTrip(t *testing.T) {
	tp := mustPyramid(t, pyramid.GridMercator, 4)
	original, err := FromTilePyramid("roundtrip", tp, mustZoomRange(t, 0, 6),
		WithItemMetadata(fixedMetadata()),
		WithAssetTemplate("{zoom}/{row}/{col}.{extension}"),
	)
	require.NoError(t, err)

	doc, err := original.ToItemDict()
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	require.Equal(t, "roundtrip", parsed.ID)
	require.True(t, original.TilePyramid.Equal(parsed.TilePyramid),
		"want %v, got %v", original.TilePyramid, parsed.TilePyramid)
	require.Equal(t, original.ZoomLevels, parsed.ZoomLevels)
	require.Equal(t, original.AssetTemplate, parsed.AssetTemplate)
	require.Equal(t, original.MIMEType, parsed.MIMEType)
	require.Equal(t, original.AssetTemplateName, parsed.AssetTemplateName)
}

func TestFromJSONErrors(t *testing.T) {
	_, err := FromJSON([]byte(`{"type": "Feature"}`))
	require.ErrorContains(t, err, "no id")

	_, err = FromJSON([]byte(`{"id": "foo"}`))
	require.ErrorContains(t, err, "no bbox")

	_, err = FromJSON([]byte(`{"id": "foo", "bbox": [0, 0, 1, 1], "properties": {}}`))
	require.ErrorContains(t, err, "tiles:tile_matrix_sets")

	_, err = FromJSON([]byte(`not json`))
	require.True(t, mcerrors.IsConfig(err))
}

func TestFileRoundTrip(t *testing.T) {
	item := mustItem(t)
	path := storage.Path(t.TempDir()).Join("item.json")
	require.NoError(t, item.ToFile(path, DefaultIndent, "", true))
	require.True(t, path.Exists())

	parsed, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, item.ID, parsed.ID)
	require.True(t, item.TilePyramid.Equal(parsed.TilePyramid))
	require.Equal(t, item.ZoomLevels, parsed.ZoomLevels)
}
