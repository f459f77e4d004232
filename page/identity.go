package page

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bakharlabs/blurshield/guard"
)

// Identity normalizes rawURL into the key a mark set is stored under:
// lowercased scheme and host, default ports dropped, query and fragment
// stripped, trailing slash removed except at the root. Two URLs that differ
// only in those components share one mark set.
func Identity(rawURL string) (string, error) {
	if err := guard.ValidateOrigin(rawURL); err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("page: identity: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}

	return scheme + "://" + host + path, nil
}

// Origin reduces rawURL to its scheme://host origin, the key per-origin
// policy is stored under. Normalization matches Identity.
func Origin(rawURL string) (string, error) {
	identity, err := Identity(rawURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(identity)
	return u.Scheme + "://" + u.Host, nil
}
