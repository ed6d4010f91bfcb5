package registry

import (
	"strings"
	"unicode/utf8"

	"github.com/franklinjsmith-create/SupplyVerify/pkg/textnorm"
)

// ParseProducts splits a raw scope product cell into display items.
//
// The cell holds groups separated by semicolons or newlines, each optionally
// led by a "Category:" prefix. Items inside a group are comma separated, except
// that commas inside parentheses belong to the item. Items of two characters
// or fewer are dropped, and duplicates are detected on the normalized form
// while the first original spelling is kept.
func ParseProducts(raw string) []string {
	products := []string{}
	seen := make(map[string]struct{})

	groups := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' || r == '\r' })
	for _, group := range groups {
		if _, rest, ok := strings.Cut(group, ":"); ok {
			group = rest
		}
		for _, item := range splitItems(group) {
			item = strings.Join(strings.Fields(item), " ")
			if utf8.RuneCountInString(item) <= 2 {
				continue
			}
			key := textnorm.Normalize(item)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			products = append(products, item)
		}
	}
	return products
}

// splitItems splits on commas at parenthesis depth zero. Unbalanced closing
// parentheses are ignored.
func splitItems(group string) []string {
	var items []string
	depth, start := 0, 0
	for i, r := range group {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				items = append(items, group[start:i])
				start = i + 1
			}
		}
	}
	return append(items, group[start:])
}
