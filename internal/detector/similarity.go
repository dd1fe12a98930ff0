package detector

import "strings"

// FuzzyThreshold is the similarity a suggested originalText must exceed for its
// replacement to overwrite a line it does not literally occur in.
const FuzzyThreshold = 0.7

// Similarity returns the fraction of the shorter string's characters that occur
// anywhere in the longer string. It ignores order and multiplicity, so it is a
// loose bag-of-characters measure, not an edit distance. Two empty strings are
// identical; one empty string shares nothing.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	shorter, longer := ra, b
	if len(rb) < len(ra) {
		shorter, longer = rb, a
	}
	found := 0
	for _, r := range shorter {
		if strings.ContainsRune(longer, r) {
			found++
		}
	}
	return float64(found) / float64(len(shorter))
}
