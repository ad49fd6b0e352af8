package consensus

import (
	"fmt"
	"strings"
)

// Lead flags set by consensus checks.
const (
	FlagNeedsReconciliation = "NEEDS_RECONCILIATION"
	FlagNeedsOCRVerify      = "NEEDS_OLMOCR_VERIFICATION"
)

// VisionConfidenceThreshold: below this the extraction gets flagged for
// secondary OCR verification. Flag only, no action here.
const VisionConfidenceThreshold = 0.95

// compared keys, with chimera_-prefixed fallbacks.
var consensusKeys = []string{"phone", "email", "age"}

// NormalizePhone strips a phone down to its digits. Idempotent.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResultsDiffer reports whether two provider results disagree on phone,
// email, or age. A key only participates when both sides have a value;
// one-sided absence is not a conflict. Phones compare digit-only.
func ResultsDiffer(r1, r2 map[string]any) bool {
	for _, k := range consensusKeys {
		v1 := pick(r1, k)
		v2 := pick(r2, k)
		if v1 == nil || v2 == nil {
			continue
		}
		if !valuesMatch(v1, v2) {
			return true
		}
	}
	return false
}

// CheckCrossSource returns true when two results differ enough that the lead
// needs manual reconciliation.
func CheckCrossSource(r1, r2 map[string]any) bool {
	return ResultsDiffer(r1, r2)
}

// NeedsVisionVerification reports whether a reply's vision confidence falls
// below the OCR verification threshold. A missing confidence reads as fully
// confident.
func NeedsVisionVerification(confidence *float64) bool {
	if confidence == nil {
		return false
	}
	return *confidence < VisionConfidenceThreshold
}

func pick(m map[string]any, key string) any {
	if v, ok := m[key]; ok && v != nil {
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
			return v
		}
	}
	if v, ok := m["chimera_"+key]; ok && v != nil {
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
			return v
		}
	}
	return nil
}

func valuesMatch(a, b any) bool {
	sa := normalizeValue(stringify(a))
	sb := normalizeValue(stringify(b))
	if sa == sb {
		return true
	}
	da := NormalizePhone(sa)
	db := NormalizePhone(sb)
	return da != "" && db != "" && da == db
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers arrive as float64; ages are integral.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
