package service

import (
	"strings"

	"github.com/franklinjsmith-create/SupplyVerify/pkg/textnorm"
)

// Match partitions userProducts into those found among certified and those
// missing. A user product matches when its normalized form contains, or is
// contained in, the normalized form of any certified product. Original text
// and order are preserved in both partitions.
func Match(userProducts, certified []string) (matching, missing []string) {
	matching = []string{}
	missing = []string{}

	keys := make([]string, 0, len(certified))
	for _, c := range certified {
		if k := textnorm.Normalize(c); k != "" {
			keys = append(keys, k)
		}
	}

	for _, p := range userProducts {
		if containsEither(textnorm.Normalize(p), keys) {
			matching = append(matching, p)
		} else {
			missing = append(missing, p)
		}
	}
	return matching, missing
}

func containsEither(product string, certified []string) bool {
	if product == "" {
		return false
	}
	for _, c := range certified {
		if strings.Contains(c, product) || strings.Contains(product, c) {
			return true
		}
	}
	return false
}
