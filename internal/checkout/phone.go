package checkout

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const fallbackRegion = "US"

// NormalizePhone returns the national significant number of raw, parsed
// against region. Unparseable input falls back to its digits.
func NormalizePhone(raw, region string) string {
	if num, err := phonenumbers.Parse(raw, region); err == nil {
		if national := phonenumbers.GetNationalSignificantNumber(num); national != "" {
			return national
		}
	}
	return digitsOnly(raw)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
