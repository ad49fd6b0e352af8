package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/scrapeshifter/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestConfidenceAge(t *testing.T) {
	assert.Equal(t, 1.0, ConfidenceAge(nil, "VP of Sales"))
	assert.Equal(t, 1.0, ConfidenceAge(intPtr(45), "VP of Sales"))
	assert.Equal(t, 1.0, ConfidenceAge(intPtr(59), "VP of Sales"))
	assert.Equal(t, 0.6, ConfidenceAge(intPtr(60), "VP of Sales"))
	assert.Equal(t, 1.0, ConfidenceAge(intPtr(72), "Retired Teacher"))
	assert.Equal(t, 1.0, ConfidenceAge(intPtr(72), ""), "no title means no contradiction")
}

func TestConfidenceIncome(t *testing.T) {
	assert.Equal(t, 1.0, ConfidenceIncome(nil, "Junior Analyst"))
	assert.Equal(t, 1.0, ConfidenceIncome(strPtr("$120,000"), "VP of Sales"))
	assert.Equal(t, 0.3, ConfidenceIncome(strPtr("$120,000"), "Junior Analyst"))
	assert.Equal(t, 0.3, ConfidenceIncome(strPtr("150k"), "Marketing Associate"))
	assert.Equal(t, 0.3, ConfidenceIncome(strPtr("101000"), "Software Intern"))
	assert.Equal(t, 1.0, ConfidenceIncome(strPtr("$85,000"), "Junior Analyst"))
	assert.Equal(t, 1.0, ConfidenceIncome(strPtr("competitive"), "Junior Analyst"), "unparseable incomes are not judged")
}

func TestParseIncome(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"$120,000", 120000, true},
		{"120k", 120000, true},
		{"85000", 85000, true},
		{" $85,000 ", 85000, true},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseIncome(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestExtractAge(t *testing.T) {
	assert.Equal(t, 44, *extractAge(models.Lead{"age": float64(44)}))
	assert.Equal(t, 44, *extractAge(models.Lead{"chimera_age": "44"}))
	assert.Nil(t, extractAge(models.Lead{}))
	assert.Nil(t, extractAge(models.Lead{"age": "unknown"}))
}

func TestExtractIncomePrecedence(t *testing.T) {
	lead := models.Lead{"income": "$120,000", "median_income": float64(65000)}
	assert.Equal(t, "$120,000", *extractIncome(lead))

	lead = models.Lead{"median_income": float64(65000)}
	assert.Equal(t, "65000", *extractIncome(lead))

	assert.Nil(t, extractIncome(models.Lead{}))
}

func TestBuildSourceMetadata(t *testing.T) {
	lead := models.Lead{
		"chimera_age":          float64(63),
		"median_income":        float64(65000),
		"NEEDS_RECONCILIATION": true,
	}
	age := intPtr(63)
	income := strPtr("65000")

	confAge := ConfidenceAge(age, "VP of Sales")
	meta := buildSourceMetadata(lead, age, income, "VP of Sales", confAge, 1.0)

	sources := meta["sources"].(map[string]string)
	assert.Equal(t, "chimera", sources["age"])
	assert.Equal(t, "census", sources["income"])
	assert.Equal(t, true, meta["needs_vlm_check"], "confidence_age 0.6 is below the 0.7 review bar")
	assert.Equal(t, true, meta["NEEDS_RECONCILIATION"])
	_, hasOCR := meta["NEEDS_OLMOCR_VERIFICATION"]
	assert.False(t, hasOCR)
}

func TestNeedsManualCheck(t *testing.T) {
	assert.False(t, needsManualCheck(1.0, 1.0))
	assert.True(t, needsManualCheck(0.6, 1.0))
	assert.True(t, needsManualCheck(1.0, 0.3))
	assert.False(t, needsManualCheck(0.7, 0.5))
}
