package usecases

import (
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/pkg/colorscale"
)

// Fallback style values for features that omit a property.
const (
	DefaultFillColor    = "#3388ff"
	DefaultOutlineColor = "#000"
	DefaultWeight       = 1.0
	DefaultFillOpacity  = 0.7
	DefaultRadius       = 8.0
)

// ResolveStyles builds the style table for the discovered data layers.
// Every layer gets the same rule; the table is keyed by name so the engine
// can look rules up per layer.
func ResolveStyles(layerNames []string) domain.StyleTable {
	styles := make(domain.StyleTable, len(layerNames))
	for _, name := range layerNames {
		styles[name] = StyleFor
	}
	return styles
}

// StyleFor derives the render style of one feature.
//
// A score always wins over an explicit color. Weight and radius of 0 fall back
// to their defaults, while an opacity of 0 is honoured.
func StyleFor(p domain.FeatureProps) domain.RenderStyle {
	s := domain.RenderStyle{
		Fill:        true,
		Color:       DefaultOutlineColor,
		Weight:      DefaultWeight,
		FillColor:   DefaultFillColor,
		FillOpacity: DefaultFillOpacity,
		Radius:      DefaultRadius,
	}

	switch {
	case p.Score != nil:
		s.FillColor = colorscale.ColorFor(*p.Score)
	case p.Color != nil:
		s.FillColor = *p.Color
	}
	if p.OutlineColor != nil {
		s.Color = *p.OutlineColor
	}
	if p.Weight != nil && *p.Weight != 0 {
		s.Weight = *p.Weight
	}
	if p.Opacity != nil {
		s.FillOpacity = *p.Opacity
	}
	if p.Radius != nil && *p.Radius != 0 {
		s.Radius = *p.Radius
	}
	return s
}
