package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/truncate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mapchete/mapchete/geo"
	"github.com/mapchete/mapchete/pyramid"
	"github.com/mapchete/mapchete/stacta"
	"github.com/mapchete/mapchete/storage"
)

const CONFIG string = `config`
const OUTPUT string = `output`
const SOURCE string = `source`
const ASSETBASEPATH string = `assetBasepath`
const RELATIVEPATHS string = `relativePaths`

type zoomConfig struct {
	Min int `yaml:"min" validate:"min=0"`
	Max int `yaml:"max" validate:"min=0"`
}

type itemConfig struct {
	ID                string         `yaml:"id" validate:"required"`
	Grid              string         `yaml:"grid" validate:"required,oneof=geodetic mercator"`
	Metatiling        int            `yaml:"metatiling" default:"1"`
	Zoom              zoomConfig     `yaml:"zoom"`
	AssetTemplate     string         `yaml:"asset_template" default:"{zoom}/{row}/{col}.tif"`
	MimeType          string         `yaml:"mime_type" default:"image/tiff; application=geotiff"`
	AssetTemplateName string         `yaml:"asset_template_name" default:"bands"`
	Bounds            []float64      `yaml:"bounds" validate:"omitempty,len=4"`
	Metadata          map[string]any `yaml:"metadata"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := cli.NewApp()
	app.Name = "stacta"
	app.Usage = "Create and inspect STAC tiled-assets items for tile pyramids"
	app.Version = versioninfo.Short()

	app.Commands = []*cli.Command{
		{
			Name:  "create",
			Usage: "Build a STAC tiled-assets item from a YAML config and write it to a file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     CONFIG,
					Aliases:  []string{"c"},
					Usage:    "YAML config describing the tile pyramid and item",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
				},
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "Output path of the item JSON document",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(OUTPUT)},
				},
				&cli.StringFlag{
					Name:     ASSETBASEPATH,
					Aliases:  []string{"b"},
					Usage:    "Base path prefixed to asset template hrefs",
					Required: false,
					EnvVars:  []string{strcase.ToScreamingSnake(ASSETBASEPATH)},
				},
				&cli.BoolFlag{
					Name:     RELATIVEPATHS,
					Aliases:  []string{"r"},
					Usage:    "Keep asset template hrefs relative to the item document",
					Value:    true,
					Required: false,
					EnvVars:  []string{strcase.ToScreamingSnake(RELATIVEPATHS)},
				},
			},
			Action: createAction,
		},
		{
			Name:  "show",
			Usage: "Parse a STAC tiled-assets item and log its pyramid parameters",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     SOURCE,
					Aliases:  []string{"s"},
					Usage:    "Path of the item JSON document",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(SOURCE)},
				},
			},
			Action: showAction,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

func createAction(c *cli.Context) error {
	config, err := loadItemConfig(c.String(CONFIG))
	if err != nil {
		return err
	}
	item, err := itemFromConfig(config)
	if err != nil {
		return err
	}

	output := storage.Path(c.String(OUTPUT))
	err = item.ToFile(output, stacta.DefaultIndent, storage.Path(c.String(ASSETBASEPATH)), c.Bool(RELATIVEPATHS))
	if err != nil {
		return err
	}
	log.Info().
		Str("id", item.ID).
		Str("output", output.String()).
		Msg("wrote STAC tiled-assets item")
	return nil
}

func showAction(c *cli.Context) error {
	item, err := stacta.FromFile(storage.Path(c.String(SOURCE)))
	if err != nil {
		return err
	}
	bbox, err := item.BBox()
	if err != nil {
		return err
	}
	log.Info().
		Str("id", item.ID).
		Str("grid", string(item.TilePyramid.Grid.Type)).
		Int("metatiling", item.TilePyramid.Metatiling).
		Ints("zoom_levels", item.ZoomLevels).
		Floats64("bbox", bbox[:]).
		Str("asset_template", truncate.StringWithTail(item.AssetTemplate, 100, "...")).
		Msg("STAC tiled-assets item")
	return nil
}

func loadItemConfig(path string) (*itemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}
	config := &itemConfig{}
	if err := defaults.Set(config); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("cannot parse config %q: %w", path, err)
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return config, nil
}

func itemFromConfig(config *itemConfig) (*stacta.Item, error) {
	grid, err := pyramid.GridFromType(pyramid.GridType(strings.ToLower(config.Grid)))
	if err != nil {
		return nil, err
	}
	tilePyramid, err := pyramid.New(grid, config.Metatiling)
	if err != nil {
		return nil, err
	}
	zoomLevels, err := pyramid.ZoomRange(config.Zoom.Min, config.Zoom.Max)
	if err != nil {
		return nil, err
	}

	opts := []stacta.Option{
		stacta.WithAssetTemplate(config.AssetTemplate),
		stacta.WithMIMEType(config.MimeType),
		stacta.WithAssetTemplateName(config.AssetTemplateName),
	}
	if config.Metadata != nil {
		opts = append(opts, stacta.WithItemMetadata(config.Metadata))
	}
	if len(config.Bounds) == 4 {
		opts = append(opts, stacta.WithBounds(geo.NewBounds(
			config.Bounds[0], config.Bounds[1], config.Bounds[2], config.Bounds[3], tilePyramid.CRS(),
		)))
	}
	return stacta.FromTilePyramid(config.ID, tilePyramid, zoomLevels, opts...)
}
