package gitx

import (
	"net/url"
	"strings"
)

// NormalizeURL converts a git remote URL into a canonical repository identity.
//
// Rules:
//   - Strip protocol (https://, git://, ssh://) and user (git@)
//   - Convert git@host:path to host/path
//   - Lowercase the host portion
//   - Strip trailing ".git"
//   - Strip trailing slashes
//
// Examples:
//
//	git@github.com:Org/Repo.git  → github.com/Org/Repo
//	https://github.com/Org/Repo.git → github.com/Org/Repo
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	var host, path string

	// Handle SSH shorthand: git@host:path
	if i := strings.Index(rawURL, "@"); i >= 0 && !strings.Contains(rawURL[:i], "://") {
		// SSH shorthand like git@github.com:Org/Repo.git
		rest := rawURL[i+1:]
		if colonIdx := strings.Index(rest, ":"); colonIdx >= 0 {
			host = rest[:colonIdx]
			path = rest[colonIdx+1:]
		}
	} else {
		// URL with protocol
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		host = parsed.Hostname()
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	host = strings.ToLower(host)
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	if host == "" {
		return path
	}
	return host + "/" + path
}

// SameRepository reports whether two remote URLs normalize to the same
// repository, so one remote listing can serve both.
func SameRepository(a, b string) bool {
	na, nb := NormalizeURL(a), NormalizeURL(b)
	return na != "" && na == nb
}
