package gis

import (
	"strconv"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
)

// Attribute fields of the standard overlay layers.
const (
	FieldZoning       = "ZONE"
	FieldFlood        = "FLD_ZONE"
	FieldSchool       = "NAME"
	FieldOverlay      = "NAME"
	FieldNeighborhood = "NAME"
	FieldSubdivision  = "SUB_NAME"
)

// Standard returns the overlay layers named by the configuration: the
// remote zoning, flood, school, development-overlay, neighborhood and
// subdivision layers, followed by any local shapefiles. School districts and
// neighborhood associations are small enough to hold in memory; the parcel
// scale layers are sized on first use.
//
// A development-overlay entry may carry its attribute field after a '#'
// ("https://.../MapServer/4#OVERLAY_NAME").
func Standard(cfg *config.Config, client *arcgis.Client, log *logger.Logger) []Layer {
	up := cfg.Upstreams
	specs := []LayerSpec{
		{Name: "zoning", URL: up.ZoningLayer, Field: FieldZoning, Target: TargetZoning, Mode: ModeMultipoint},
		{Name: "flood", URL: up.FloodLayer, Field: FieldFlood, Target: TargetFlood, Mode: ModeAuto},
		{Name: "schools", URL: up.SchoolLayer, Field: FieldSchool, Target: TargetSchool, Mode: ModeWhole},
		{Name: "neighborhoods", URL: up.NeighborhoodLayer, Field: FieldNeighborhood, Target: TargetNeighborhood, Mode: ModeWhole},
		{Name: "subdivisions", URL: up.SubdivisionLayer, Field: FieldSubdivision, Target: TargetSubdivision, Mode: ModeMultipoint},
	}
	for i, raw := range up.OverlayLayers {
		url, field, _ := strings.Cut(raw, "#")
		if field == "" {
			field = FieldOverlay
		}
		specs = append(specs, LayerSpec{Name: "overlay-" + strconv.Itoa(i), URL: url, Field: field, Target: TargetOverlays, Mode: ModeAuto})
	}

	var layers []Layer
	for _, s := range specs {
		if s.URL == "" {
			continue
		}
		layers = append(layers, NewArcGISLayer(s, client, cfg.Limits.BatchSize, cfg.Limits.WholeLayerMaxCount, log))
	}
	for _, sf := range cfg.Shapefiles {
		layers = append(layers, NewShapefileLayer(sf))
	}
	return layers
}
