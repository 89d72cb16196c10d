package model

import "strings"

// NormalizeDomain lowercases a domain and strips any scheme, path and port,
// so "https://Shop.Example:443/cart" and "shop.example" name the same tenant.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndexByte(d, ':'); i >= 0 && !strings.HasSuffix(d, "]") {
		d = d[:i]
	}
	return d
}
