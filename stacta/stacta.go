// Package stacta models STAC items following the tiled-assets extension and
// converts them from and to tile pyramids. All externally visible item fields
// (geometry, bbox, properties, asset templates, links) are computed from the
// stored fields on every read, so they can never desynchronize.
package stacta

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"
	"github.com/cespare/xxhash/v2"
	"github.com/go-spatial/geom"
	"github.com/perimeterx/marshmallow"
	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/maps"

	"github.com/mapchete/mapchete/crs"
	mcerrors "github.com/mapchete/mapchete/errors"
	"github.com/mapchete/mapchete/geo"
	"github.com/mapchete/mapchete/pyramid"
	"github.com/mapchete/mapchete/storage"
	"github.com/mapchete/mapchete/tms"
)

// Extension schema versions embedded in stac_extensions URLs.
const (
	TiledAssetsVersion = "v1.0.0"
	EOVersion          = "v1.1.0"
)

const (
	DefaultSTACVersion       = "1.0.0"
	DefaultAssetTemplate     = "{zoom}/{row}/{col}.tif"
	DefaultMIMEType          = "image/tiff; application=geotiff"
	DefaultAssetTemplateName = "bands"
	DefaultIndent            = 4
)

// Item is a STAC tiled-assets item. Read accessors are pure functions of the
// stored fields and safe for concurrent use; Extend is the only mutator and
// needs external synchronization.
type Item struct {
	ID          string
	TilePyramid pyramid.TilePyramid
	ZoomLevels  pyramid.ZoomLevels
	STACVersion string
	Assets      map[string]any
	// Bounds optionally overrides the pyramid bounds; the effective footprint
	// is always clamped to the pyramid extent.
	Bounds            *geo.Bounds
	ItemMetadata      map[string]any
	AssetTemplate     string
	MIMEType          string
	AssetTemplateName string
}

// Option configures optional Item fields on construction.
type Option func(*Item)

func WithAssetTemplate(template string) Option {
	return func(i *Item) { i.AssetTemplate = convertTemplate(template) }
}

func WithBounds(bounds geo.Bounds) Option {
	return func(i *Item) { i.Bounds = &bounds }
}

func WithItemMetadata(metadata map[string]any) Option {
	return func(i *Item) { i.ItemMetadata = metadata }
}

func WithMIMEType(mimeType string) Option {
	return func(i *Item) { i.MIMEType = mimeType }
}

func WithAssetTemplateName(name string) Option {
	return func(i *Item) { i.AssetTemplateName = name }
}

func WithAssets(assets map[string]any) Option {
	return func(i *Item) { i.Assets = assets }
}

// FromTilePyramid builds a fresh item. The asset template may use the
// {zoom}/{row}/{col} placeholders, which are converted to the tiled-assets
// {TileMatrix}/{TileRow}/{TileCol} form.
func FromTilePyramid(id string, tp pyramid.TilePyramid, zoomLevels pyramid.ZoomLevels, opts ...Option) (*Item, error) {
	if id == "" {
		return nil, mcerrors.Config("item id must not be empty")
	}
	if len(zoomLevels) == 0 {
		return nil, mcerrors.Config("item needs at least one zoom level")
	}
	item := &Item{
		ID:                id,
		TilePyramid:       tp,
		ZoomLevels:        zoomLevels,
		STACVersion:       DefaultSTACVersion,
		AssetTemplate:     convertTemplate(DefaultAssetTemplate),
		MIMEType:          DefaultMIMEType,
		AssetTemplateName: DefaultAssetTemplateName,
	}
	for _, opt := range opts {
		opt(item)
	}
	if item.ItemMetadata == nil {
		item.ItemMetadata = map[string]any{}
	}
	return item, nil
}

func convertTemplate(template string) string {
	return strings.NewReplacer(
		"{zoom}", "{TileMatrix}",
		"{row}", "{TileRow}",
		"{col}", "{TileCol}",
		"{extension}", "tif",
	).Replace(template)
}

// itemBounds is the effective footprint in the pyramid CRS: the override
// bounds if set, else the pyramid bounds, clamped so it never extends beyond
// the pyramid extent on any side.
func (i *Item) itemBounds() (geo.Bounds, error) {
	pyramidBounds := i.TilePyramid.Bounds()
	bounds := pyramidBounds
	if i.Bounds != nil {
		bounds = *i.Bounds
		if bounds.CRS.IsZero() {
			bounds.CRS = i.TilePyramid.CRS()
		}
	}
	reprojected, err := geo.Reproject(bounds, i.TilePyramid.CRS())
	if err != nil {
		return geo.Bounds{}, mcerrors.ReprojectionWrap(err, "cannot reproject item bounds of %q to pyramid CRS", i.ID)
	}
	return reprojected.Clamp(pyramidBounds), nil
}

func (i *Item) latLonBounds() (geo.Bounds, error) {
	bounds, err := i.itemBounds()
	if err != nil {
		return geo.Bounds{}, err
	}
	latLon, err := geo.Reproject(bounds, crs.EPSG4326)
	if err != nil {
		return geo.Bounds{}, mcerrors.ReprojectionWrap(err, "cannot reproject item bounds of %q to geographic coordinates", i.ID)
	}
	return latLon, nil
}

// Geometry is the item footprint as a GeoJSON polygon in geographic coordinates.
func (i *Item) Geometry() (map[string]any, error) {
	bounds, err := i.latLonBounds()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "Polygon",
		"coordinates": bounds.Polygon(),
	}, nil
}

// BBox is the item footprint envelope in geographic coordinates.
func (i *Item) BBox() (geom.Extent, error) {
	bounds, err := i.latLonBounds()
	if err != nil {
		return geom.Extent{}, err
	}
	return bounds.Extent(), nil
}

// STACExtensions lists the extension schemas the item conforms to. The EO
// extension is announced only when eo:bands metadata is present.
func (i *Item) STACExtensions() []string {
	extensions := []string{
		"https://stac-extensions.github.io/tiled-assets/" + TiledAssetsVersion + "/schema.json",
	}
	if bands, ok := i.ItemMetadata["eo:bands"]; ok && bands != nil {
		extensions = append(extensions, "https://stac-extensions.github.io/eo/"+EOVersion+"/schema.json")
	}
	return extensions
}

// TileMatrixSet renders the item's pyramid and zoom levels as a tile matrix set.
func (i *Item) TileMatrixSet() (tms.TileMatrixSet, error) {
	return tms.FromTilePyramid(i.TilePyramid, i.ZoomLevels)
}

func (i *Item) metadataProperties() map[string]any {
	if properties, ok := i.ItemMetadata["properties"].(map[string]any); ok {
		return properties
	}
	return map[string]any{}
}

// Properties computes the item properties: caller-supplied properties merged
// with the injected datetime, collection and the tiles: maps keyed by the
// tile matrix set identifier.
func (i *Item) Properties() (*orderedmap.OrderedMap[string, any], error) {
	out := orderedmap.New[string, any]()
	metadata := i.metadataProperties()
	keys := maps.Keys(metadata)
	sort.Strings(keys)
	for _, key := range keys {
		out.Set(key, metadata[key])
	}

	out.Set("datetime", i.datetime(metadata))
	out.Set("collection", i.ID)

	tileMatrixSet, err := i.TileMatrixSet()
	if err != nil {
		return nil, err
	}
	links, err := i.tileMatrixLinks(&tileMatrixSet)
	if err != nil {
		return nil, err
	}
	out.Set("tiles:tile_matrix_links", map[string]any{tileMatrixSet.Identifier: links})
	out.Set("tiles:tile_matrix_sets", map[string]any{tileMatrixSet.Identifier: &tileMatrixSet})

	if bands, ok := i.ItemMetadata["eo:bands"]; ok && bands != nil {
		out.Set("eo:bands", bands)
	}
	return out, nil
}

// datetime priority: start_datetime, else end_datetime, else current UTC time.
func (i *Item) datetime(properties map[string]any) string {
	if start, ok := properties["start_datetime"].(string); ok && start != "" {
		return start
	}
	if end, ok := properties["end_datetime"].(string); ok && end != "" {
		return end
	}
	return utc.Now().Format(time.RFC3339)
}

// tileMatrixLinks computes the inclusive tile index range intersecting the
// item footprint for every zoom level. The min corner (left, top) resolves
// with the right/bottom edge policy, the max corner (right, bottom) with the
// opposite one, so bounds exactly on tile edges stay inside the range.
func (i *Item) tileMatrixLinks(tileMatrixSet *tms.TileMatrixSet) (*orderedmap.OrderedMap[string, any], error) {
	bounds, err := i.itemBounds()
	if err != nil {
		return nil, err
	}
	limits := orderedmap.New[string, any]()
	for _, zoom := range i.ZoomLevels {
		minTile, err := i.TilePyramid.TileFromXY(geom.Point{bounds.Left, bounds.Top}, zoom, pyramid.EdgeRightBottom)
		if err != nil {
			return nil, err
		}
		maxTile, err := i.TilePyramid.TileFromXY(geom.Point{bounds.Right, bounds.Bottom}, zoom, pyramid.EdgeLeftTop)
		if err != nil {
			return nil, err
		}
		zoomLimits := orderedmap.New[string, any]()
		zoomLimits.Set("min_tile_col", minTile.Col)
		zoomLimits.Set("max_tile_col", maxTile.Col)
		zoomLimits.Set("min_tile_row", minTile.Row)
		zoomLimits.Set("max_tile_row", maxTile.Row)
		limits.Set(strconv.Itoa(zoom), zoomLimits)
	}
	links := orderedmap.New[string, any]()
	links.Set("url", "#"+tileMatrixSet.Identifier)
	links.Set("limits", limits)
	return links, nil
}

// AssetTemplates returns the asset_templates map with the single configured
// template entry.
func (i *Item) AssetTemplates() map[string]any {
	entry := map[string]any{
		"href": i.AssetTemplate,
		"type": i.MIMEType,
	}
	if bands, ok := i.ItemMetadata["eo:bands"]; ok && bands != nil {
		entry["eo:bands"] = bands
	}
	return map[string]any{i.AssetTemplateName: entry}
}

// Links passes through caller-supplied links.
func (i *Item) Links() []any {
	if links, ok := i.ItemMetadata["links"].([]any); ok {
		return links
	}
	return []any{}
}

// AssetHref resolves the stored template for a concrete tile.
func (i *Item) AssetHref(tile pyramid.Tile) string {
	return strings.NewReplacer(
		"{TileMatrix}", strconv.Itoa(tile.Zoom),
		"{TileRow}", strconv.Itoa(tile.Row),
		"{TileCol}", strconv.Itoa(tile.Col),
	).Replace(i.AssetTemplate)
}

// Extend unions additional zoom levels and/or bounds into the item. It is
// idempotent for values already covered and never shrinks the item.
func (i *Item) Extend(zoomLevels pyramid.ZoomLevels, bounds *geo.Bounds) error {
	if len(zoomLevels) > 0 {
		i.ZoomLevels = i.ZoomLevels.Union(zoomLevels)
	}
	if bounds != nil {
		if i.Bounds == nil {
			adopted := *bounds
			i.Bounds = &adopted
		} else {
			union, err := i.Bounds.Union(*bounds)
			if err != nil {
				return err
			}
			i.Bounds = &union
		}
	}
	return nil
}

// ToItemDict produces the canonical nested item document.
func (i *Item) ToItemDict() (*orderedmap.OrderedMap[string, any], error) {
	geometry, err := i.Geometry()
	if err != nil {
		return nil, err
	}
	bbox, err := i.BBox()
	if err != nil {
		return nil, err
	}
	properties, err := i.Properties()
	if err != nil {
		return nil, err
	}
	assets := i.Assets
	if assets == nil {
		assets = map[string]any{}
	}
	doc := orderedmap.New[string, any]()
	doc.Set("type", "Feature")
	doc.Set("stac_version", i.STACVersion)
	doc.Set("stac_extensions", i.STACExtensions())
	doc.Set("id", i.ID)
	doc.Set("geometry", geometry)
	doc.Set("bbox", bbox)
	doc.Set("properties", properties)
	doc.Set("links", i.Links())
	doc.Set("assets", assets)
	doc.Set("asset_templates", i.AssetTemplates())
	return doc, nil
}

// Fingerprint is the content hash of the canonical document. Object keys are
// normalized before hashing, so two structurally equal items hash identically
// regardless of construction or parse order.
func (i *Item) Fingerprint() (uint64, error) {
	doc, err := i.ToItemDict()
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	// a decode/encode round trip through plain maps sorts all object keys
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return 0, err
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(canonical), nil
}

// Equal compares two items by the content hash of their canonical documents.
func (i *Item) Equal(other *Item) (bool, error) {
	ownFingerprint, err := i.Fingerprint()
	if err != nil {
		return false, err
	}
	otherFingerprint, err := other.Fingerprint()
	if err != nil {
		return false, err
	}
	return ownFingerprint == otherFingerprint, nil
}

// ToItem produces the item document with asset template hrefs resolved
// against a basepath: when relativePaths is false or an explicit
// assetBasepath is given, hrefs are prefixed with the absolute basepath
// (derived from assetBasepath if given, else from the parent directory of
// selfHref). A self link is appended when selfHref is known.
func (i *Item) ToItem(selfHref, assetBasepath storage.Path, relativePaths bool) (*orderedmap.OrderedMap[string, any], error) {
	doc, err := i.ToItemDict()
	if err != nil {
		return nil, err
	}

	if !relativePaths || assetBasepath != "" {
		var basepath storage.Path
		switch {
		case assetBasepath != "":
			basepath, err = assetBasepath.Absolute()
			if err != nil {
				return nil, err
			}
		case selfHref != "":
			absoluteSelf, err := selfHref.Absolute()
			if err != nil {
				return nil, err
			}
			basepath = absoluteSelf.Parent()
		default:
			return nil, mcerrors.Config("either asset_basepath or self_href must be set")
		}
		assetTemplates := i.AssetTemplates()
		for name, rawEntry := range assetTemplates {
			entry := rawEntry.(map[string]any)
			entry["href"] = basepath.Join(entry["href"].(string)).String()
			assetTemplates[name] = entry
		}
		doc.Set("asset_templates", assetTemplates)
	}

	if selfHref != "" {
		absoluteSelf, err := selfHref.Absolute()
		if err != nil {
			return nil, err
		}
		links := append(i.Links(), map[string]any{
			"rel":  "self",
			"href": absoluteSelf.String(),
			"type": "application/json",
		})
		doc.Set("links", links)
	}
	return doc, nil
}

// ToFile writes the item document as indented JSON.
func (i *Item) ToFile(path storage.Path, indent int, assetBasepath storage.Path, relativePaths bool) error {
	doc, err := i.ToItem(path, assetBasepath, relativePaths)
	if err != nil {
		return err
	}
	return path.WriteJSON(doc, indent)
}

type itemDocument struct {
	ID          string         `json:"id"`
	STACVersion string         `json:"stac_version"`
	BBox        []float64      `json:"bbox"`
	Properties  map[string]any `json:"properties"`
	Assets      map[string]any `json:"assets"`
}

// FromItemDict parses a persisted item document. Only the first tile matrix
// set and the first asset template are used; multiple sets per item are
// unsupported.
func FromItemDict(doc map[string]any) (*Item, error) {
	var parsed itemDocument
	if _, err := marshmallow.UnmarshalFromJSONMap(doc, &parsed); err != nil {
		return nil, mcerrors.Configf("invalid STAC item: %v", err)
	}
	if parsed.ID == "" {
		return nil, mcerrors.Config("STAC item has no id")
	}
	if len(parsed.BBox) != 4 {
		return nil, mcerrors.Config("STAC item has no bbox")
	}

	tileMatrixSet, err := firstTileMatrixSet(parsed.Properties)
	if err != nil {
		return nil, err
	}
	tilePyramid, err := tileMatrixSet.ToTilePyramid()
	if err != nil {
		return nil, err
	}
	zoomLevels, err := tileMatrixSet.ToZoomLevels()
	if err != nil {
		return nil, err
	}
	templateName, template, mimeType, err := firstAssetTemplate(doc)
	if err != nil {
		return nil, err
	}

	stacVersion := parsed.STACVersion
	if stacVersion == "" {
		stacVersion = DefaultSTACVersion
	}
	bounds := geo.NewBounds(parsed.BBox[0], parsed.BBox[1], parsed.BBox[2], parsed.BBox[3], crs.EPSG4326)
	metadata := map[string]any{"properties": parsed.Properties}
	// eo:bands lives next to the properties in the metadata, not inside them
	if bands, ok := parsed.Properties["eo:bands"]; ok && bands != nil {
		metadata["eo:bands"] = bands
	}
	return &Item{
		ID:                parsed.ID,
		TilePyramid:       tilePyramid,
		ZoomLevels:        zoomLevels,
		STACVersion:       stacVersion,
		Assets:            parsed.Assets,
		Bounds:            &bounds,
		ItemMetadata:      metadata,
		AssetTemplate:     template,
		MIMEType:          mimeType,
		AssetTemplateName: templateName,
	}, nil
}

func firstTileMatrixSet(properties map[string]any) (*tms.TileMatrixSet, error) {
	rawSets, ok := properties["tiles:tile_matrix_sets"].(map[string]any)
	if !ok || len(rawSets) == 0 {
		return nil, mcerrors.Config(`no "tiles:tile_matrix_sets" found in STAC item`)
	}
	identifiers := maps.Keys(rawSets)
	sort.Strings(identifiers)
	if len(identifiers) > 1 {
		log.Debug().
			Strs("identifiers", identifiers).
			Msg("multiple tile matrix sets found in STAC item, only the first is used")
	}
	var tileMatrixSet tms.TileMatrixSet
	if err := tileMatrixSet.UnmarshalJSONFromMap(rawSets[identifiers[0]]); err != nil {
		return nil, mcerrors.Configf("invalid tile matrix set %q: %v", identifiers[0], err)
	}
	return &tileMatrixSet, nil
}

func firstAssetTemplate(doc map[string]any) (name, template, mimeType string, err error) {
	rawTemplates, ok := doc["asset_templates"].(map[string]any)
	if !ok || len(rawTemplates) == 0 {
		return "", "", "", mcerrors.Config("no asset_templates found in STAC item")
	}
	names := maps.Keys(rawTemplates)
	sort.Strings(names)
	entry, ok := rawTemplates[names[0]].(map[string]any)
	if !ok {
		return "", "", "", mcerrors.Configf("asset template %q is not an object", names[0])
	}
	template, _ = entry["href"].(string)
	mimeType, _ = entry["type"].(string)
	if template == "" {
		return "", "", "", mcerrors.Configf("asset template %q has no href", names[0])
	}
	return names[0], template, mimeType, nil
}

// FromJSON parses a serialized item document.
func FromJSON(data []byte) (*Item, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, mcerrors.Configf("invalid STAC item JSON: %v", err)
	}
	return FromItemDict(doc)
}

// FromFile reads and parses a persisted item document.
func FromFile(path storage.Path) (*Item, error) {
	var doc map[string]any
	if err := path.ReadJSON(&doc); err != nil {
		return nil, err
	}
	return FromItemDict(doc)
}
