package growth

import (
	"strings"

	"github.com/sells-group/branch-insights/internal/config"
)

// Segment is a beverage sub-category.
type Segment string

const (
	SegmentCoffee    Segment = "coffee"
	SegmentMilkshake Segment = "milkshake"
	SegmentFrappe    Segment = "frappe"
)

// Segments returns the beverage segments in display order.
func Segments() []Segment {
	return []Segment{SegmentCoffee, SegmentMilkshake, SegmentFrappe}
}

// classifier maps category and item names onto beverage segments and
// desserts by keyword.
type classifier struct {
	coffee, milkshake, frappe, dessert []string
}

func newClassifier(cfg config.GrowthConfig) classifier {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return classifier{
		coffee:    lower(cfg.CoffeeKeywords),
		milkshake: lower(cfg.MilkshakeKeywords),
		frappe:    lower(cfg.FrappeKeywords),
		dessert:   lower(cfg.DessertKeywords),
	}
}

func matchAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// segment classifies a name. Frappés are checked first since their names
// often mention coffee.
func (c classifier) segment(name string) (Segment, bool) {
	switch {
	case matchAny(name, c.frappe):
		return SegmentFrappe, true
	case matchAny(name, c.milkshake):
		return SegmentMilkshake, true
	case matchAny(name, c.coffee):
		return SegmentCoffee, true
	}
	return "", false
}

// itemSegment classifies by category first and falls back to the item name.
func (c classifier) itemSegment(category, item string) (Segment, bool) {
	if s, ok := c.segment(category); ok {
		return s, true
	}
	return c.segment(item)
}

func (c classifier) isDessert(category, item string) bool {
	if _, bev := c.itemSegment(category, item); bev {
		return false
	}
	return matchAny(item, c.dessert) || matchAny(category, c.dessert)
}
