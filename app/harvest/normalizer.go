package harvest

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/flathound/flathound/app/cfg"
	"github.com/flathound/flathound/app/database"
	"github.com/flathound/flathound/app/parser"
)

var negativePetKeywords = []string{
	"no pets",
	"no dogs",
	"no cats",
	"pets not allowed",
	"not pet friendly",
	"pet-free",
}

var positivePetKeywords = []string{
	"pets ok",
	"pets okay",
	"pets welcome",
	"pets allowed",
	"pet friendly",
	"pet-friendly",
	"dogs ok",
	"cats ok",
	"dog friendly",
	"cat friendly",
}

var riskKeywords = []string{
	"wire transfer",
	"western union",
	"moneygram",
	"money order",
	"cashier's check",
	"cashiers check",
	"out of the country",
	"payment upfront",
	"deposit before viewing",
}

// Normalizer turns raw feed entries into structured listings using
// keyword and pattern heuristics over the listing text.
type Normalizer struct {
	priceFloor   int
	priceCeiling int
	maxBedrooms  int
	bounds       cfg.Bounds
}

func NewNormalizer(priceFloor, priceCeiling, maxBedrooms int, bounds cfg.Bounds) *Normalizer {
	return &Normalizer{
		priceFloor:   priceFloor,
		priceCeiling: priceCeiling,
		maxBedrooms:  maxBedrooms,
		bounds:       bounds,
	}
}

// Normalize builds a listing from a raw feed entry. Fields whose value
// cannot be determined from the text stay nil rather than guessed.
func (n *Normalizer) Normalize(raw parser.RawListing, now time.Time) database.Listing {
	text := raw.Title + " " + raw.Description

	listing := database.Listing{
		ExternalID:   raw.ExternalID,
		Title:        strings.TrimSpace(raw.Title),
		URL:          raw.Link,
		Price:        n.ExtractPrice(text),
		Bedrooms:     n.ExtractBedrooms(text),
		PetFriendly:  n.ExtractPetPolicy(text),
		Neighborhood: n.CanonicalNeighborhood(raw.Categories),
		HarvestedAt:  now,
		IsActive:     true,
		RiskScore:    n.riskSignals(text),
	}

	listing.Latitude, listing.Longitude = n.ParseGeoPoint(raw.GeoPoint)

	if raw.PostedAt != nil {
		listing.PostedAt = raw.PostedAt
	} else if raw.PostedLabel != "" {
		if age, ok := ParseRelativeAge(raw.PostedLabel); ok {
			t := now.Add(-age)
			listing.PostedAt = &t
		}
	}

	return listing
}

// Enrich fills fields still missing after Normalize from the full
// listing page text and accumulates any extra risk signals found there.
func (n *Normalizer) Enrich(listing *database.Listing, detailText string) {
	if listing.Price == nil {
		listing.Price = n.ExtractPrice(detailText)
	}
	if listing.Bedrooms == nil {
		listing.Bedrooms = n.ExtractBedrooms(detailText)
	}
	if listing.PetFriendly == nil {
		listing.PetFriendly = n.ExtractPetPolicy(detailText)
	}
	listing.RiskScore += n.riskSignals(detailText)
}

// ExtractPrice finds the first dollar amount in the text. Amounts
// outside the plausible rent band are rejected as parsing noise.
func (n *Normalizer) ExtractPrice(text string) *int {
	for i := 0; i < len(text); i++ {
		if text[i] != '$' {
			continue
		}
		j := i + 1
		digits := strings.Builder{}
		for j < len(text) && (isDigit(text[j]) || text[j] == ',') {
			if isDigit(text[j]) {
				digits.WriteByte(text[j])
			}
			j++
		}
		if digits.Len() == 0 {
			continue
		}
		value, err := strconv.Atoi(digits.String())
		if err != nil {
			continue
		}
		if value < n.priceFloor || value > n.priceCeiling {
			return nil
		}
		return &value
	}
	return nil
}

// ExtractBedrooms reads a bedroom count from forms like "2br", "2 bd",
// "3 bedroom" or the words "studio" and "efficiency", which count as
// zero bedrooms. Counts above the configured maximum are rejected.
func (n *Normalizer) ExtractBedrooms(text string) *int {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "studio") || strings.Contains(lower, "efficiency") {
		zero := 0
		return &zero
	}

	replacer := strings.NewReplacer("-", " ", "/", " ", "(", " ", ")", " ", ",", " ")
	fields := strings.Fields(replacer.Replace(lower))

	for i, field := range fields {
		// Compact form: "2br", "3bd"
		if count, ok := splitCompactBedrooms(field); ok {
			return n.plausibleBedrooms(count)
		}
		// Split form: "2 br", "3 bedroom"
		if i+1 < len(fields) && isBedroomWord(fields[i+1]) {
			if count, err := strconv.Atoi(field); err == nil {
				return n.plausibleBedrooms(count)
			}
		}
	}
	return nil
}

func splitCompactBedrooms(field string) (int, bool) {
	i := 0
	for i < len(field) && isDigit(field[i]) {
		i++
	}
	if i == 0 || !isBedroomWord(field[i:]) {
		return 0, false
	}
	count, err := strconv.Atoi(field[:i])
	if err != nil {
		return 0, false
	}
	return count, true
}

func isBedroomWord(s string) bool {
	switch s {
	case "br", "bd", "bed", "beds", "bedroom", "bedrooms":
		return true
	}
	return false
}

func (n *Normalizer) plausibleBedrooms(count int) *int {
	if count < 0 || count > n.maxBedrooms {
		return nil
	}
	return &count
}

// ExtractPetPolicy reads the pet policy from the text. Negative phrases
// win over positive ones, and text mentioning neither leaves the policy
// unknown.
func (n *Normalizer) ExtractPetPolicy(text string) *bool {
	lower := strings.ToLower(text)

	for _, keyword := range negativePetKeywords {
		if strings.Contains(lower, keyword) {
			no := false
			return &no
		}
	}
	for _, keyword := range positivePetKeywords {
		if strings.Contains(lower, keyword) {
			yes := true
			return &yes
		}
	}
	return nil
}

// ParseGeoPoint parses a "lat lon" pair and validates it against the
// metro bounding box. Points outside the box are dropped as geocoding
// noise.
func (n *Normalizer) ParseGeoPoint(point string) (*float64, *float64) {
	fields := strings.Fields(point)
	if len(fields) != 2 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, nil
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, nil
	}

	if lat < n.bounds.MinLat || lat > n.bounds.MaxLat || lon < n.bounds.MinLon || lon > n.bounds.MaxLon {
		return nil, nil
	}
	return &lat, &lon
}

// CanonicalNeighborhood picks the first usable category label and
// canonicalizes its casing so "capitol hill" and "Capitol Hill" match.
func (n *Normalizer) CanonicalNeighborhood(categories []string) string {
	for _, category := range categories {
		trimmed := strings.TrimSpace(category)
		if trimmed == "" {
			continue
		}
		return cases.Title(language.English).String(strings.ToLower(trimmed))
	}
	return ""
}

func (n *Normalizer) riskSignals(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, keyword := range riskKeywords {
		if strings.Contains(lower, keyword) {
			count++
		}
	}
	return count
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
