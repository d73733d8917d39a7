package main

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// GeometryPreset names a pre-sized image for the format subcommand's
// --preset flag, the size-catalog idea behind
// dargueta-disko/disks/disks.go's DiskGeometry table, narrowed from a
// physical-media geometry down to the one dimension this module's
// images actually vary along: block count.
type GeometryPreset struct {
	Slug   string `csv:"slug"`
	Blocks int    `csv:"blocks"`
	Notes  string `csv:"notes"`
}

//go:embed geometry-presets.csv
var geometryPresetsRawCSV string

var geometryPresets map[string]GeometryPreset

func init() {
	geometryPresets = make(map[string]GeometryPreset)
	reader := strings.NewReader(geometryPresetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row GeometryPreset) error {
		if _, exists := geometryPresets[row.Slug]; exists {
			return fmt.Errorf("duplicate geometry preset slug %q", row.Slug)
		}
		geometryPresets[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

func lookupGeometryPreset(slug string) (GeometryPreset, error) {
	preset, ok := geometryPresets[slug]
	if !ok {
		return GeometryPreset{}, fmt.Errorf("no predefined geometry preset named %q", slug)
	}
	return preset, nil
}
