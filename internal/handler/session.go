package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/climbs/internal/store"
)

// Cookies sets and clears session cookies with one TTL and security policy.
type Cookies struct {
	TTL    time.Duration
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, r *http.Request, name, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Secure || r.TLS != nil,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// endSession deletes the session behind the named cookie, if any, and clears
// the cookie. Logging out never fails in front of the browser.
func endSession(ctx context.Context, w http.ResponseWriter, r *http.Request, sessions *store.SessionStore, cookies Cookies, name string, logger *slog.Logger) {
	if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
		sess, err := sessions.GetByToken(ctx, cookie.Value)
		if err != nil {
			logger.Error("logout lookup", "error", err)
		}
		if sess != nil {
			if err := sessions.Delete(ctx, sess.ID); err != nil {
				logger.Error("logout delete session", "error", err)
			}
		}
	}
	cookies.clear(w, name)
}
