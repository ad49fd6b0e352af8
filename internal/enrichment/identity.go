// Package enrichment holds the data sources the pipeline stations draw from:
// identity parsing, phone validation, skip tracing, census demographics, the
// DNC seam, and the outbound alert webhook.
package enrichment

import (
	"regexp"
	"strings"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

var (
	nameSuffixRe      = regexp.MustCompile(`(?i),?\s*(PhD|Ph\.D|MD|M\.D|MBA|CPA|Esq|Jr|Sr|III|II|IV)\.?$`)
	parentheticalRe   = regexp.MustCompile(`\s*\([^)]+\)$`)
	trailingSegmentRe = regexp.MustCompile(`\s*[|\-]\s*.+$`)
	unitedStatesRe    = regexp.MustCompile(`(?i),\s*United\s+States$`)
	zipcodeRe         = regexp.MustCompile(`\b(\d{5})\b`)
	stateAbbrevRe     = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

// CleanName strips credentials, parentheticals like pronouns, and
// "| Company" / "- Title" tails that break people-search queries.
func CleanName(name string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = nameSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = parentheticalRe.ReplaceAllString(cleaned, "")
	cleaned = trailingSegmentRe.ReplaceAllString(cleaned, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// ParseName splits a full name into first and last. Middle names fold into
// the last name: "Mary Jane Watson" -> ("Mary", "Jane Watson").
func ParseName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// ParseLocation extracts city, state, and zipcode from a free-form US
// location string ("Naples, Florida, United States", "Miami, FL 33101").
func ParseLocation(location string) (city, state, zipcode string) {
	if strings.TrimSpace(location) == "" {
		return "", "", ""
	}
	location = unitedStatesRe.ReplaceAllString(location, "")

	if m := zipcodeRe.FindStringSubmatch(location); m != nil {
		zipcode = m[1]
		location = zipcodeRe.ReplaceAllString(location, "")
	}

	var parts []string
	for _, p := range strings.Split(location, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) >= 2:
		return parts[0], NormalizeState(parts[1]), zipcode
	case len(parts) == 1:
		if m := stateAbbrevRe.FindStringSubmatch(parts[0]); m != nil {
			state = m[1]
			city = strings.TrimSpace(strings.TrimSuffix(strings.ReplaceAll(parts[0], state, ""), ","))
			return city, state, zipcode
		}
		return parts[0], "", zipcode
	}
	return "", "", zipcode
}

// ResolveIdentity turns a raw lead into a structured identity delta:
// firstName, lastName, fullName, city, state, zipcode, plus passthrough of
// company, title, linkedinUrl, platform, and any source email.
func ResolveIdentity(lead models.Lead) map[string]any {
	name := CleanName(lead.DisplayName())
	first, last := ParseName(name)
	city, state, zipcode := ParseLocation(lead.GetString("location"))

	out := map[string]any{
		"firstName": first,
		"lastName":  last,
		"fullName":  name,
		"city":      city,
		"state":     state,
		"zipcode":   zipcode,
		"company":   lead.Company(),
		"title":     lead.Title(),
	}
	if u := lead.LinkedInURL(); u != "" {
		out["linkedinUrl"] = u
	}
	if p := lead.GetString("platform"); p != "" {
		out["platform"] = p
	} else {
		out["platform"] = "linkedin"
	}
	if e := lead.GetString("email"); e != "" {
		out["email"] = e
	}
	return out
}

var stateAbbreviations = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

// NormalizeState converts a full US state name to its two-letter abbreviation.
// Already-abbreviated input passes through uppercased.
func NormalizeState(state string) string {
	s := strings.TrimSpace(state)
	if len(s) == 2 && strings.ToUpper(s) == s {
		return s
	}
	if abbr, ok := stateAbbreviations[strings.ToLower(s)]; ok {
		return abbr
	}
	if len(s) >= 2 {
		return strings.ToUpper(s[:2])
	}
	return strings.ToUpper(s)
}
