package recommend

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxFocusAreas caps the fallback keyword list.
const MaxFocusAreas = 5

var (
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	stopWords   = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "of": {}, "in": {}, "to": {},
		"for": {}, "with": {}, "and": {}, "or": {}, "what": {}, "which": {}, "how": {},
	}
)

// FocusAreas extracts the most frequent meaningful words from the prompts of
// incorrectly answered questions. Ties keep first-appearance order.
func FocusAreas(prompts []string) []string {
	if len(prompts) == 0 {
		return nil
	}
	text := punctuation.ReplaceAllString(strings.ToLower(strings.Join(prompts, " ")), "")

	counts := map[string]int{}
	var order []string
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > MaxFocusAreas {
		order = order[:MaxFocusAreas]
	}
	return order
}
