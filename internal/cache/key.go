package cache

import (
	"sort"
	"strings"

	"idxquote/internal/domain"
)

// Key identifies one cached quote set. Construction is deterministic: symbols
// are deduplicated and sorted so concurrent requests for the same set collide
// on the same key regardless of argument order.
type Key struct {
	Class   domain.AssetClass
	Symbols []string
}

// NewKey builds a key for a symbol set of one asset class.
func NewKey(class domain.AssetClass, symbols ...string) Key {
	uniq := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return Key{Class: class, Symbols: out}
}

// String renders the fast-tier key, e.g. "stock:prices:BBCA,BBRI" or
// "crypto:prices:bitcoin,ethereum".
func (k Key) String() string {
	prefix := "stock:prices:"
	if k.Class == domain.AssetCrypto {
		prefix = "crypto:prices:"
	}
	return prefix + strings.Join(k.Symbols, ",")
}
