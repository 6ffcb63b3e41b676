package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to base. A trailing slash on the last
// segment is kept. An empty base yields an absolute path.
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}

	u.Path = path.Join(append([]string{"/", u.Path}, paths...)...)
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") && u.Path != "/" {
		u.Path += "/"
	}
	return u.String(), nil
}

// MustJoinPath is JoinPath for bases already validated at config load.
func MustJoinPath(base string, paths ...string) string {
	result, err := JoinPath(base, paths...)
	if err != nil {
		panic(err)
	}
	return result
}
