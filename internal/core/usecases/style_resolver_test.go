package usecases_test

import (
	"math"
	"testing"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/usecases"
	"github.com/samirrijal/ndvigrid/internal/pkg/colorscale"
)

func TestStyleFor_ScoreOnly(t *testing.T) {
	s := usecases.StyleFor(domain.FeatureProps{Score: ptr(0.5)})

	want := domain.RenderStyle{
		Fill:        true,
		Color:       "#000",
		Weight:      1,
		FillColor:   colorscale.ColorFor(0.5),
		FillOpacity: 0.7,
		Radius:      8,
	}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}
}

func TestStyleFor_FillColorPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		props domain.FeatureProps
		want  string
	}{
		{"score beats color", domain.FeatureProps{Score: ptr(-1.0), Color: ptr("#abcdef")}, "#ff0000"},
		{"color without score", domain.FeatureProps{Color: ptr("#abcdef")}, "#abcdef"},
		{"zero score is present", domain.FeatureProps{Score: ptr(0.0), Color: ptr("#abcdef")}, "#7f7f00"},
		{"nothing", domain.FeatureProps{}, usecases.DefaultFillColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usecases.StyleFor(tt.props).FillColor; got != tt.want {
				t.Errorf("fillColor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStyleFor_ExplicitProperties(t *testing.T) {
	s := usecases.StyleFor(domain.FeatureProps{
		OutlineColor: ptr("#123456"),
		Weight:       ptr(3.0),
		Opacity:      ptr(0.0),
		Radius:       ptr(2.5),
	})
	if s.Color != "#123456" {
		t.Errorf("color = %s", s.Color)
	}
	if s.Weight != 3 {
		t.Errorf("weight = %v", s.Weight)
	}
	if s.FillOpacity != 0 {
		t.Errorf("an opacity of 0 must be kept, got %v", s.FillOpacity)
	}
	if s.Radius != 2.5 {
		t.Errorf("radius = %v", s.Radius)
	}
	if !s.Fill {
		t.Error("fill must always be true")
	}
}

func TestStyleFor_ZeroWeightAndRadiusFallBack(t *testing.T) {
	s := usecases.StyleFor(domain.FeatureProps{Weight: ptr(0.0), Radius: ptr(0.0)})
	if s.Weight != usecases.DefaultWeight || s.Radius != usecases.DefaultRadius {
		t.Errorf("got weight=%v radius=%v, want defaults", s.Weight, s.Radius)
	}
}

func TestStyleFor_MalformedProperties(t *testing.T) {
	props := domain.FeaturePropsFromMap(map[string]interface{}{
		"color":   42,
		"weight":  nil,
		"opacity": "0.25",
	})
	s := usecases.StyleFor(props)
	if s.FillColor != usecases.DefaultFillColor {
		t.Errorf("malformed color should fall back to default, got %s", s.FillColor)
	}
	if s.Weight != usecases.DefaultWeight {
		t.Errorf("weight = %v", s.Weight)
	}
	if s.FillOpacity != 0.25 {
		t.Errorf("numeric string opacity should parse, got %v", s.FillOpacity)
	}
}

// A present score always wins over color; unusable values count as 0 and
// infinities clamp.
func TestStyleFor_UnusableScore(t *testing.T) {
	tests := []struct {
		name  string
		score interface{}
		want  string
	}{
		{"non-numeric string", "abc", "#7f7f00"},
		{"bool", true, "#7f7f00"},
		{"NaN", math.NaN(), "#7f7f00"},
		{"+Inf", math.Inf(1), "#00ff00"},
		{"-Inf", math.Inf(-1), "#ff0000"},
		{"numeric string", "1", "#00ff00"},
		{"above range", 3.0, "#00ff00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := domain.FeaturePropsFromMap(map[string]interface{}{"score": tt.score, "color": "#abcdef"})
			if got := usecases.StyleFor(props).FillColor; got != tt.want {
				t.Errorf("fill = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveStyles(t *testing.T) {
	table := usecases.ResolveStyles([]string{"ndvi", "boundaries"})
	if len(table) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(table))
	}
	for _, name := range []string{"ndvi", "boundaries"} {
		rule, ok := table.Lookup(name)
		if !ok {
			t.Fatalf("missing rule for %s", name)
		}
		if got := rule(domain.FeatureProps{Score: ptr(1.0)}).FillColor; got != "#00ff00" {
			t.Errorf("%s: fillColor = %s", name, got)
		}
	}
	if _, ok := table.Lookup("unknown"); ok {
		t.Error("unknown layer should have no rule without a wildcard")
	}
	if len(usecases.ResolveStyles(nil)) != 0 {
		t.Error("no layer names should give an empty table")
	}
}
