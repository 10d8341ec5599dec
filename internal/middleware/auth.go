package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

// Members and admins carry separate cookies so one browser can hold both
// sessions at once, as the counter staff often do.
const (
	MemberCookie = "climbs_session"
	AdminCookie  = "climbs_admin_session"
)

// LoadSession resolves the session cookies into an auth.Caller on the request
// context. Requests without a valid session continue as anonymous; it never
// rejects a request itself. A member session only counts while the member is
// still approved.
func LoadSession(sessions *store.SessionStore, members *store.MemberStore, admins *store.AdminStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var c auth.Caller
			ctx := r.Context()

			if sess := lookup(r, MemberCookie, sessions, logger); sess != nil && sess.MemberID != nil {
				m, err := members.GetByID(ctx, *sess.MemberID)
				if err != nil {
					logger.Error("load session member", "error", err)
				}
				if m != nil && m.Status == model.MemberApproved {
					c.MemberID = m.ID
					c.MemberUserID = m.UserID
					c.SessionID = sess.ID
				}
			}

			if sess := lookup(r, AdminCookie, sessions, logger); sess != nil && sess.AdminID != nil {
				a, err := admins.GetByID(ctx, *sess.AdminID)
				if err != nil {
					logger.Error("load session admin", "error", err)
				}
				if a != nil {
					c.AdminID = a.ID
					c.AdminName = a.FullName
					if c.AdminName == "" {
						c.AdminName = a.Username
					}
					if c.SessionID == 0 {
						c.SessionID = sess.ID
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.WithCaller(ctx, c)))
		})
	}
}

func lookup(r *http.Request, name string, sessions *store.SessionStore, logger *slog.Logger) *model.Session {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := sessions.GetByToken(r.Context(), cookie.Value)
	if err != nil {
		logger.Error("load session", "cookie", name, "error", err)
		return nil
	}
	return sess
}

// RequireMember answers 401 unless the caller is a signed-in member.
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CallerFrom(r.Context()).IsMember() {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin answers 401 unless the caller is a signed-in administrator.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
