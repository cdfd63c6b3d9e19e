package domain

import (
	"math"
	"strconv"
)

// FeatureProps holds the styling attributes of a single vector-tile feature.
// A nil field means the property was missing or not usable.
type FeatureProps struct {
	Score        *float64
	Color        *string
	OutlineColor *string
	Weight       *float64
	Opacity      *float64
	Radius       *float64
}

// FeaturePropsFromMap extracts styling attributes from a decoded property bag.
// Values of the wrong type are treated as absent, except for score.
func FeaturePropsFromMap(m map[string]interface{}) FeatureProps {
	return FeatureProps{
		Score:        scoreProp(m),
		Color:        stringProp(m, "color"),
		OutlineColor: stringProp(m, "outlineColor"),
		Weight:       numberProp(m, "weight"),
		Opacity:      numberProp(m, "opacity"),
		Radius:       numberProp(m, "radius"),
	}
}

func numberProp(m map[string]interface{}, key string) *float64 {
	f, ok := toFloat(m[key])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// scoreProp differs from numberProp: a score that is present counts even when
// it is unusable. Non-numeric values and NaN become 0, infinities are kept so
// the color scale clamps them.
func scoreProp(m map[string]interface{}) *float64 {
	v, ok := m["score"]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		f = 0
	}
	return &f
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringProp(m map[string]interface{}, key string) *string {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// RenderStyle is the visual style applied to one feature.
type RenderStyle struct {
	Fill        bool    `json:"fill"`
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	Radius      float64 `json:"radius"`
}

// StyleRule computes the style of a feature of one layer.
type StyleRule func(FeatureProps) RenderStyle

// StyleTable maps data-layer names to their style rule.
type StyleTable map[string]StyleRule

// WildcardLayer keys a rule that applies to any layer without its own entry.
const WildcardLayer = "*"

// Lookup returns the rule for a layer, falling back to the wildcard rule.
func (t StyleTable) Lookup(layer string) (StyleRule, bool) {
	if r, ok := t[layer]; ok {
		return r, true
	}
	r, ok := t[WildcardLayer]
	return r, ok
}

// LayerState is the lifecycle phase of a viewport's vector layer.
type LayerState int

const (
	LayerUnattached LayerState = iota
	LayerLoading
	LayerStyled
	LayerAttached
)

func (s LayerState) String() string {
	switch s {
	case LayerLoading:
		return "loading"
	case LayerStyled:
		return "styled"
	case LayerAttached:
		return "attached"
	default:
		return "unattached"
	}
}
