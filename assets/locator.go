package assets

import (
	"net/url"
	"strings"
)

// Locator builds versioned asset URLs.
type Locator struct {
	BaseURL string
	Version string
}

// URL resolves path against BaseURL and sets the v query parameter to
// version, or to the locator's Version when version is empty. An absolute
// path is used as is.
func (l Locator) URL(path, version string) string {
	if version == "" {
		version = l.Version
	}

	raw := path
	if !strings.Contains(path, "://") {
		base := l.BaseURL
		if base != "" && !strings.HasSuffix(base, "/") {
			base += "/"
		}
		raw = base + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil || version == "" {
		return raw
	}
	q := u.Query()
	q.Set("v", version)
	u.RawQuery = q.Encode()
	return u.String()
}
