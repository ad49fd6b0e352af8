package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"John Smith", "John Smith"},
		{"John Smith, PhD", "John Smith"},
		{"John Smith MBA", "John Smith"},
		{"Jane Doe (she/her)", "Jane Doe"},
		{"Jane Doe | Acme Corp", "Jane Doe"},
		{"Jane Doe - VP of Sales", "Jane Doe"},
		{"  Jane   Doe  ", "Jane Doe"},
		{"Robert Smith Jr.", "Robert Smith"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanName(tt.in), "input %q", tt.in)
	}
}

func TestParseName(t *testing.T) {
	first, last := ParseName("Mary Jane Watson")
	assert.Equal(t, "Mary", first)
	assert.Equal(t, "Jane Watson", last, "middle names fold into the last name")

	first, last = ParseName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Equal(t, "", last)

	first, last = ParseName("")
	assert.Equal(t, "", first)
	assert.Equal(t, "", last)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in            string
		city, state   string
		zipcode       string
	}{
		{"Naples, Florida, United States", "Naples", "FL", ""},
		{"Miami, FL 33101", "Miami", "FL", "33101"},
		{"New York, New York", "New York", "NY", ""},
		{"Austin, TX", "Austin", "TX", ""},
		{"Chicago", "Chicago", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		city, state, zipcode := ParseLocation(tt.in)
		assert.Equal(t, tt.city, city, "city for %q", tt.in)
		assert.Equal(t, tt.state, state, "state for %q", tt.in)
		assert.Equal(t, tt.zipcode, zipcode, "zipcode for %q", tt.in)
	}
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "FL", NormalizeState("Florida"))
	assert.Equal(t, "FL", NormalizeState("FL"))
	assert.Equal(t, "DC", NormalizeState("District of Columbia"))
	assert.Equal(t, "NY", NormalizeState("new york"))
}

func TestResolveIdentity(t *testing.T) {
	lead := models.Lead{
		"name":        "Jane Doe, PhD (she/her)",
		"location":    "Naples, Florida, United States",
		"company":     "Acme Corp",
		"headline":    "VP of Sales",
		"linkedinUrl": "https://linkedin.com/in/janedoe",
	}

	out := ResolveIdentity(lead)

	assert.Equal(t, "Jane", out["firstName"])
	assert.Equal(t, "Doe", out["lastName"])
	assert.Equal(t, "Jane Doe", out["fullName"])
	assert.Equal(t, "Naples", out["city"])
	assert.Equal(t, "FL", out["state"])
	assert.Equal(t, "Acme Corp", out["company"])
	assert.Equal(t, "VP of Sales", out["title"])
	assert.Equal(t, "https://linkedin.com/in/janedoe", out["linkedinUrl"])
	assert.Equal(t, "linkedin", out["platform"], "platform defaults to linkedin")
}

func TestResolveIdentityFirstLastFallback(t *testing.T) {
	out := ResolveIdentity(models.Lead{"firstName": "Jane", "lastName": "Doe"})
	assert.Equal(t, "Jane", out["firstName"])
	assert.Equal(t, "Doe", out["lastName"])
}
