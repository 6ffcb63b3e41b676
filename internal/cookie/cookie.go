package cookie

import (
	"net/http"
	"time"

	"github.com/studio-arteamo/sitecms/internal/envutil"
	"github.com/studio-arteamo/sitecms/internal/log"
)

// Cookie names shared with the admin UI.
const (
	SessionCookie = "session"
	StateCookie   = "oauth_state"
)

func set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":   name,
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetSession sets the session cookie.
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	set(w, SessionCookie, value, maxAge)
}

// SetState sets the OAuth state cookie.
func SetState(w http.ResponseWriter, value string, maxAge time.Duration) {
	set(w, StateCookie, value, maxAge)
}

// Clear expires a cookie immediately.
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// ClearSession removes the session cookie.
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearState removes the OAuth state cookie.
func ClearState(w http.ResponseWriter) {
	Clear(w, StateCookie)
}

// Get retrieves a cookie value from the request.
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetSession retrieves the session cookie value.
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetState retrieves the OAuth state cookie value.
func GetState(r *http.Request) (string, error) {
	return Get(r, StateCookie)
}
