package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieName is the session cookie read by the frontend middleware; the
// payload format is a compatibility contract and must not change shape.
const CookieName = "auth_session"

// SessionMaxAge bounds both the cookie lifetime and the embedded iat check.
const SessionMaxAge = 24 * time.Hour

// Session is the payload carried in the cookie: base64url-encoded JSON,
// unsigned. It identifies the caller; every claim is re-checked against the
// database before anything sensitive happens.
type Session struct {
	UserID      int64  `json:"userId"`
	RoleID      Role   `json:"roleId"`
	Username    string `json:"username"`
	Role        string `json:"role"` // "admin" or "customer", see Role.SessionRole
	DisplayName string `json:"displayName"`
	ParentID    *int64 `json:"parentId,omitempty"`
	Email       string `json:"email"`
	DocumentID  string `json:"documentId"`
	IssuedAt    int64  `json:"iat"`
}

// Encode serializes the session for the cookie value.
func Encode(s *Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a cookie value back into a Session. Returns nil on any
// failure — a garbled cookie is simply an anonymous request — and nil for
// sessions older than SessionMaxAge.
func Decode(value string) *Session {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if s.UserID == 0 || !s.RoleID.Valid() {
		return nil
	}
	if s.IssuedAt > 0 && time.Since(time.Unix(s.IssuedAt, 0)) > SessionMaxAge {
		return nil
	}
	return &s
}

// SetSessionCookie writes the session cookie on the response. HttpOnly and
// SameSite=Lax; Secure is left to the deployment's TLS terminator config.
func SetSessionCookie(c echo.Context, s *Session) error {
	value, err := Encode(s)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(SessionMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest decodes the session cookie on the request, or nil when absent
// or invalid.
func FromRequest(c echo.Context) *Session {
	ck, err := c.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	return Decode(ck.Value)
}
