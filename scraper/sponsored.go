package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Tile is the observable surface of one search-result element: enough to
// identify the product and to decide whether the placement is paid.
type Tile struct {
	ASIN      string
	Title     string
	PriceText string
	Text      string
	AriaLabel string
	Classes   []string
	DataAttrs map[string]string
}

var adTextPattern = regexp.MustCompile(`(?i)\b(sponsored|featured from our brands)\b`)

// hasSponsoredBadge reports a visible "Sponsored" badge in the tile text.
func hasSponsoredBadge(t Tile) bool {
	return adTextPattern.MatchString(t.Text)
}

// hasSponsoredAria reports a sponsor-indicating aria-label.
func hasSponsoredAria(t Tile) bool {
	return strings.Contains(strings.ToLower(t.AriaLabel), "sponsored")
}

// hasAdDataAttr reports ad-specific data attributes on the tile.
func hasAdDataAttr(t Tile) bool {
	for key, value := range t.DataAttrs {
		switch strings.ToLower(key) {
		case "data-ad-id", "data-ad-index":
			return true
		case "data-component-type":
			if strings.Contains(strings.ToLower(value), "sp-sponsored") {
				return true
			}
		}
	}
	return false
}

// hasAdClass reports membership in a known ad CSS class.
func hasAdClass(t Tile) bool {
	for _, class := range t.Classes {
		switch strings.ToLower(class) {
		case "adholder", "s-sponsored-list-item", "sponsored-results":
			return true
		}
	}
	return false
}

// hasAdTitlePrefix reports ad phrasing embedded in the tile title itself.
func hasAdTitlePrefix(t Tile) bool {
	return adTextPattern.MatchString(t.Title)
}

// IsSponsored evaluates the sponsor heuristics as one ordered short-circuit
// chain: badge text, aria-label, data attributes, CSS class, title pattern.
func IsSponsored(t Tile) bool {
	return hasSponsoredBadge(t) ||
		hasSponsoredAria(t) ||
		hasAdDataAttr(t) ||
		hasAdClass(t) ||
		hasAdTitlePrefix(t)
}

// tileFromSelection projects a search-result element onto a Tile.
func tileFromSelection(sel *goquery.Selection) Tile {
	tile := Tile{
		ASIN:      strings.TrimSpace(sel.AttrOr("data-asin", "")),
		Title:     strings.TrimSpace(sel.Find("h2 a span").First().Text()),
		PriceText: strings.TrimSpace(sel.Find("span.a-price span.a-offscreen").First().Text()),
		AriaLabel: sel.AttrOr("aria-label", ""),
		DataAttrs: make(map[string]string),
	}
	if tile.Title == "" {
		tile.Title = strings.TrimSpace(sel.Find("h2 span").First().Text())
	}

	badge := sel.Find("span.puis-sponsored-label-text, span.s-label-popover-default").First()
	tile.Text = strings.TrimSpace(badge.Text())

	if class, ok := sel.Attr("class"); ok {
		tile.Classes = strings.Fields(class)
	}
	if len(sel.Nodes) > 0 {
		for _, attr := range sel.Nodes[0].Attr {
			if strings.HasPrefix(attr.Key, "data-") {
				tile.DataAttrs[attr.Key] = attr.Val
			}
		}
	}
	return tile
}
