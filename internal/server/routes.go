package server

import (
	"net/http"

	"github.com/studio-arteamo/sitecms/internal/urlutil"
)

// Endpoint names under the base path, kept from the serverless layout so
// the admin panel needs no changes.
const (
	RouteLogin         = "auth-login"
	RouteCallback      = "auth-callback"
	RouteVerify        = "auth-verify"
	RouteLogout        = "auth-logout"
	RouteCommitConfig  = "commit-config"
	RouteCommitHistory = "commit-history"
)

// NewHandler builds the routed, middleware-wrapped service handler.
func NewHandler(basePath string, allowedOrigins []string, auth *AuthHandlers, commits *CommitHandlers) http.Handler {
	mux := http.NewServeMux()
	cors := NewCORSMiddleware(allowedOrigins)

	route := func(name string, h http.HandlerFunc, middlewares ...MiddlewareFunc) {
		mux.Handle(urlutil.MustJoinPath(basePath, name), ChainMiddleware(h, middlewares...))
	}

	route(RouteLogin, auth.Login)
	route(RouteCallback, auth.Callback)
	route(RouteVerify, auth.Verify, cors)
	route(RouteLogout, auth.Logout)
	route(RouteCommitConfig, commits.Commit, cors)
	route(RouteCommitHistory, commits.History, cors)
	mux.Handle("/health", NewHealthHandler())

	return ChainMiddleware(mux,
		NewLoggerMiddleware("http"),
		NewRequestIDMiddleware(),
		NewRecoverMiddleware("http"),
	)
}
