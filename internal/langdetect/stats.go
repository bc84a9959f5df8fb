package langdetect

import (
	"strings"
	"unicode/utf8"
)

// CharStats is the character-class breakdown of a text sample.
// Ratios are taken over the full sample length in runes.
type CharStats struct {
	Total  int
	CJK    int
	Latin  int
	Digits int
	Other  int
}

// Stats counts CJK ideographs (U+4E00..U+9FFF), ASCII letters and digits
func Stats(sample string) CharStats {
	var s CharStats
	for _, r := range sample {
		s.Total++
		switch {
		case IsCJK(r):
			s.CJK++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			s.Latin++
		case r >= '0' && r <= '9':
			s.Digits++
		default:
			s.Other++
		}
	}
	return s
}

// IsCJK reports whether r is a CJK unified ideograph
func IsCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

func (s CharStats) ratio(n int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(n) / float64(s.Total)
}

func (s CharStats) CJKRatio() float64   { return s.ratio(s.CJK) }
func (s CharStats) LatinRatio() float64 { return s.ratio(s.Latin) }
func (s CharStats) DigitRatio() float64 { return s.ratio(s.Digits) }
func (s CharStats) OtherRatio() float64 { return s.ratio(s.Other) }

// TrimmedLength is the rune count of the sample without surrounding whitespace
func TrimmedLength(sample string) int {
	return utf8.RuneCountInString(strings.TrimSpace(sample))
}
