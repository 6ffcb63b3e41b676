package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether SITECMS_ENV selects development mode, where
// cookies are sent without the Secure flag so plain-http localhost works.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("SITECMS_ENV"))
	return env == "development" || env == "dev"
}
