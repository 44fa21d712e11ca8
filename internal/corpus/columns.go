package corpus

import "strings"

var (
	questionKeys = []string{"question", "problem"}
	answerKeys   = []string{"answer", "solution"}
)

// detectColumns returns the first header matching a question key and the
// first matching an answer key, -1 when absent.
func detectColumns(headers []string) (int, int) {
	q, a := -1, -1
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if q < 0 && containsAny(name, questionKeys) {
			q = i
			continue
		}
		if a < 0 && containsAny(name, answerKeys) {
			a = i
		}
	}
	return q, a
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
