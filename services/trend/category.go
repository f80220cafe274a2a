package trend

import (
	"strings"

	"github.com/gosimple/slug"
)

type Category string

const (
	CategoryVisualStyle      Category = "visual_style"
	CategoryAudioMusic       Category = "audio_music"
	CategoryCreatorTechnique Category = "creator_technique"
	CategoryMemeFormat       Category = "meme_format"
	CategoryProductBrand     Category = "product_brand"
	CategoryBehaviorPattern  Category = "behavior_pattern"
	CategoryOther            Category = "other"
)

type CategoryInfo struct {
	Value Category `json:"value"`
	Label string   `json:"label"`
}

// categories is the only category table; submission validation and GET /v1/categories both read it.
var categories = []CategoryInfo{
	{Value: CategoryVisualStyle, Label: "Visual Style"},
	{Value: CategoryAudioMusic, Label: "Audio/Music"},
	{Value: CategoryCreatorTechnique, Label: "Creator Technique"},
	{Value: CategoryMemeFormat, Label: "Meme Format"},
	{Value: CategoryProductBrand, Label: "Product/Brand"},
	{Value: CategoryBehaviorPattern, Label: "Behavior Pattern"},
	{Value: CategoryOther, Label: "Other"},
}

// aliases are slugged labels seen in older clients.
var aliases = map[string]Category{
	"audio_and_music":   CategoryAudioMusic,
	"music":             CategoryAudioMusic,
	"sound":             CategoryAudioMusic,
	"meme":              CategoryMemeFormat,
	"product_and_brand": CategoryProductBrand,
	"brand":             CategoryProductBrand,
	"technique":         CategoryCreatorTechnique,
	"behavior":          CategoryBehaviorPattern,
	"behaviour_pattern": CategoryBehaviorPattern,
	"aesthetic":         CategoryVisualStyle,
}

var lookup = func() map[string]Category {
	m := make(map[string]Category, len(categories)*2+len(aliases))
	for _, c := range categories {
		m[string(c.Value)] = c.Value
		m[normalize(c.Label)] = c.Value
	}
	for k, v := range aliases {
		m[k] = v
	}
	return m
}()

func normalize(label string) string {
	return strings.ReplaceAll(slug.Make(strings.TrimSpace(label)), "-", "_")
}

// ParseCategory maps an enum value or a free-text label onto the enum.
func ParseCategory(label string) (Category, bool) {
	if label == "" {
		return "", false
	}
	c, ok := lookup[normalize(label)]
	return c, ok
}

func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categories))
	copy(out, categories)
	return out
}
