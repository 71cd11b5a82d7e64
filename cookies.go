package accountd

import (
	"net/http"
	"time"
)

const refreshCookieMaxAge = 365 * 24 * time.Hour

// cookiePolicy centralizes cookie placement. The session cookie spans
// the whole application and never expires client-side; token cookies
// are scoped under a per-account path so simultaneously logged-in
// accounts cannot clobber each other. The refresh cookie outlives the
// token it carries: expiry is enforced inside the token, not by the
// browser.
type cookiePolicy struct {
	cfg       CookieConfig
	accessTTL time.Duration
}

func newCookiePolicy(cfg CookieConfig, accessTTL time.Duration) *cookiePolicy {
	return &cookiePolicy{cfg: cfg, accessTTL: accessTTL}
}

func (p *cookiePolicy) accountPath(accountID string) string {
	return p.cfg.BasePath + "/" + accountID
}

func (p *cookiePolicy) refreshPath(accountID string) string {
	return p.accountPath(accountID) + "/account/refreshToken"
}

func (p *cookiePolicy) accessName(accountID string) string {
	return "accessToken_" + accountID
}

func (p *cookiePolicy) refreshName(accountID string) string {
	return "refreshToken_" + accountID
}

// WriteSession sets the application-wide session cookie. No MaxAge: the
// session record has no expiry of its own.
func (p *cookiePolicy) WriteSession(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.SessionName,
		Value:    value,
		Path:     "/",
		Domain:   p.cfg.Domain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   p.cfg.Secure,
	})
}

// WriteAccess sets the per-account access token cookie.
func (p *cookiePolicy) WriteAccess(w http.ResponseWriter, accountID, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.accessName(accountID),
		Value:    tok,
		Path:     p.accountPath(accountID),
		Domain:   p.cfg.Domain,
		MaxAge:   int(p.accessTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   p.cfg.Secure,
	})
}

// WriteRefresh sets the per-account refresh token cookie on its narrow
// refresh path.
func (p *cookiePolicy) WriteRefresh(w http.ResponseWriter, accountID, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.refreshName(accountID),
		Value:    tok,
		Path:     p.refreshPath(accountID),
		Domain:   p.cfg.Domain,
		MaxAge:   int(refreshCookieMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   p.cfg.Secure,
	})
}

// ClearAccount expires both token cookies for one account.
func (p *cookiePolicy) ClearAccount(w http.ResponseWriter, accountID string) {
	p.clear(w, p.accessName(accountID), p.accountPath(accountID))
	p.clear(w, p.refreshName(accountID), p.refreshPath(accountID))
}

// ClearSession expires the session cookie.
func (p *cookiePolicy) ClearSession(w http.ResponseWriter) {
	p.clear(w, p.cfg.SessionName, "/")
}

func (p *cookiePolicy) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   p.cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   p.cfg.Secure,
	})
}
