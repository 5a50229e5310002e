package middleware

import (
	"net/http"

	"github.com/luckyshop/server/internal/auth"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// CookieConfig controls session cookie attributes. Production deployments serve the API cross-site, so
// cookies there are Secure with SameSite=None.
type CookieConfig struct {
	Production bool
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteStrictMode
	if c.Production {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Production,
		SameSite: sameSite,
	}
}

// SetSessionCookies writes both tokens of pair with max-age matching each token's TTL
func (c CookieConfig) SetSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, c.cookie(AccessCookie, pair.AccessToken, int(pair.AccessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshCookie, pair.RefreshToken, int(pair.RefreshTTL.Seconds())))
}

// ClearSessionCookies expires both session cookies on the client
func (c CookieConfig) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookie, "", -1))
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SessionTokens returns the access and refresh cookie values of r, empty when absent
func SessionTokens(r *http.Request) (access, refresh string) {
	return cookieValue(r, AccessCookie), cookieValue(r, RefreshCookie)
}
