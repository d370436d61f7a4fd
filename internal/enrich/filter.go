package enrich

import "strings"

// TitleMatches reports whether title contains any keyword, ignoring case.
// An empty keyword list matches every title.
func TitleMatches(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
