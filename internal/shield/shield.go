// Package shield protects structurally fragile HTML regions before a
// document is sent to a completion backend, and restores them afterwards.
//
// Shielding is textual, not structural: spans are matched with
// first-closing-tag semantics, which is sufficient for the documents this
// service handles. The package boundary exists so a structural parser could
// replace the implementation without touching callers.
package shield

import (
	"fmt"
	"regexp"
	"strings"
)

var commentRe = regexp.MustCompile(`<!--[\s\S]*?-->`)

// category is one class of tag span replaced by a placeholder. Categories
// are processed in this fixed order, each operating on the previous
// category's output, so overlaps resolve deterministically.
type category struct {
	name string
	re   *regexp.Regexp
}

var categories = []category{
	{"svg", regexp.MustCompile(`(?i)<svg[^>]*>[\s\S]*?</svg>`)},
	{"script", regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)},
	{"style", regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)},
	{"meta", regexp.MustCompile(`(?i)<meta[^>]*>`)},
	{"link", regexp.MustCompile(`(?i)<link[^>]*>`)},
}

// Protect strips HTML comments outright and replaces every span of each
// shielded category with a stable placeholder token. The returned map
// records token -> original fragment; tokens are unique per document and
// numbered per category starting at 1.
func Protect(html string) (string, map[string]string) {
	placeholders := make(map[string]string)
	shielded := commentRe.ReplaceAllString(html, "")

	for _, cat := range categories {
		n := 0
		shielded = cat.re.ReplaceAllStringFunc(shielded, func(match string) string {
			n++
			token := fmt.Sprintf("__%s%d__", cat.name[:2], n)
			placeholders[token] = match
			return token
		})
	}

	return shielded, placeholders
}

// Restore replaces every literal occurrence of each placeholder token with
// its original fragment. Entries are applied independently, not as a
// fixpoint: if one fragment's original text happens to contain another
// token verbatim, the result is order-dependent.
func Restore(text string, placeholders map[string]string) string {
	restored := text
	for token, original := range placeholders {
		restored = strings.ReplaceAll(restored, token, original)
	}
	return restored
}
