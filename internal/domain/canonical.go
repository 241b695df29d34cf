package domain

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalizeURL normalizes a URL so that trivially different spellings compare equal:
// - trims surrounding whitespace
// - lowercases scheme and host, drops a trailing dot on the host
// - removes fragment and default ports (80 for http, 443 for https)
// - sorts query parameters
// - removes a trailing slash (except root) and turns an empty path into "/"
// Unparseable input is returned trimmed but otherwise unchanged.
func CanonicalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Host != "" {
		host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
		port := u.Port()
		if port == "" || (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			if strings.Contains(host, ":") {
				host = "[" + host + "]"
			}
			u.Host = host
		} else {
			u.Host = strings.ToLower(u.Host)
		}
	}

	if u.RawQuery != "" {
		u.RawQuery = sortedQuery(u.Query())
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}

	return u.String()
}

func sortedQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// Resolve resolves ref against base. It returns false when either cannot be parsed
// or the result is not absolute.
func Resolve(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if r.IsAbs() {
		return r.String(), true
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !b.IsAbs() {
		return "", false
	}
	return b.ResolveReference(r).String(), true
}

// SameURL reports whether a and b are the same after resolving both against base
// and canonicalizing.
func SameURL(base, a, b string) bool {
	ra, ok := Resolve(base, a)
	if !ok {
		return false
	}
	rb, ok := Resolve(base, b)
	if !ok {
		return false
	}
	return CanonicalizeURL(ra) == CanonicalizeURL(rb)
}
