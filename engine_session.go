package accountd

import (
	"context"
	"net/http"
	"time"

	"github.com/halverstam/accountd/session"
	"github.com/halverstam/accountd/token"
)

// DecodeSession recovers the multi-account session from the cookie
// value. A missing, tampered or otherwise undecodable value yields a
// fresh empty session; the cookie is advisory, the bearer tokens are
// what authenticate.
func (e *Engine) DecodeSession(cookieValue string) *session.Session {
	if e == nil || cookieValue == "" {
		return &session.Session{}
	}
	s, err := e.sessions.DecodeSigned(cookieValue)
	if err != nil {
		return &session.Session{}
	}
	return s
}

// SessionFromRequest reads the session cookie off r and decodes it.
func (e *Engine) SessionFromRequest(r *http.Request) *session.Session {
	if e == nil {
		return &session.Session{}
	}
	c, err := r.Cookie(e.config.Cookie.SessionName)
	if err != nil {
		return &session.Session{}
	}
	return e.DecodeSession(c.Value)
}

// SwitchAccount changes which signed-in account is current and rewrites
// the session cookie. The target must already be a session member.
func (e *Engine) SwitchAccount(w http.ResponseWriter, sess *session.Session, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := sess.SetCurrent(accountID); err != nil {
		return ErrSessionMembership
	}
	return e.writeSession(w, sess)
}

// ActiveAccounts resolves every session member to its account record.
// Members that no longer exist are skipped, not errored: a deleted
// account must not break the picker for the remaining ones.
func (e *Engine) ActiveAccounts(ctx context.Context, sess *session.Session) ([]*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	accounts := make([]*Account, 0, len(sess.AccountIDs))
	for _, id := range sess.AccountIDs {
		account, err := e.store.FindByID(ctx, id)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Refresh exchanges a valid refresh token for a new access token and
// rewrites only the access cookie; the refresh cookie stays untouched.
// For oauth accounts the provider access token is refreshed through the
// host hook and embedded in the new bearer token.
func (e *Engine) Refresh(ctx context.Context, w http.ResponseWriter, accountID, refreshToken string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil || claims.Subject != accountID {
		e.metricInc(MetricRefreshFailure)
		return "", ErrTokenInvalid
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", ErrTokenInvalid
	}
	if err := statusToError(account.Status, account.EmailVerified); err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	embedded := token.Embedded{
		AccessToken:  claims.OAuthAccessToken,
		RefreshToken: claims.OAuthRefreshToken,
	}
	if account.Kind == KindOAuth && e.oauthHook != nil && claims.OAuthRefreshToken != "" {
		provider := ""
		if account.OAuth != nil {
			provider = account.OAuth.Provider
		}
		fresh, err := e.oauthHook.RefreshAccessToken(ctx, provider, claims.OAuthRefreshToken)
		if err != nil {
			e.metricInc(MetricRefreshFailure)
			return "", ErrTokenInvalid
		}
		embedded.AccessToken = fresh
	}

	access, err := e.codec.IssueAccess(account.ID, string(account.Kind), e.accessTTL(account), embedded)
	if err != nil {
		return "", ErrTokenInvalid
	}
	e.cookies.WriteAccess(w, account.ID, access)

	e.metricInc(MetricRefreshSuccess)
	return access, nil
}

// Logout signs one account out: its token cookies are expired and it
// leaves the session. When it was the current account the first
// remaining member takes over; signing out the last member clears the
// session cookie entirely.
func (e *Engine) Logout(w http.ResponseWriter, sess *session.Session, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	e.cookies.ClearAccount(w, accountID)
	sess.RemoveAccount(accountID)
	e.metricInc(MetricLogout)
	return e.writeSession(w, sess)
}

// LogoutAll signs every session member out at once.
func (e *Engine) LogoutAll(w http.ResponseWriter, sess *session.Session) error {
	if e == nil {
		return ErrEngineNotReady
	}
	for _, id := range sess.AccountIDs {
		e.cookies.ClearAccount(w, id)
	}
	sess.Clear()
	e.metricInc(MetricLogoutAll)
	return e.writeSession(w, sess)
}

// Revoke is Logout plus best-effort upstream revocation: for an oauth
// account the provider tokens embedded in the bearer tokens are passed
// to the host hook. Hook failures are logged and do not block the local
// sign-out.
func (e *Engine) Revoke(ctx context.Context, w http.ResponseWriter, sess *session.Session, accountID, accessToken, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if e.oauthHook != nil {
		if account, err := e.store.FindByID(ctx, accountID); err == nil &&
			account.Kind == KindOAuth && account.OAuth != nil {
			oauthAccess, oauthRefresh := e.embeddedProviderTokens(accessToken, refreshToken)
			if oauthAccess != "" || oauthRefresh != "" {
				if err := e.oauthHook.RevokeTokens(ctx, account.OAuth.Provider, oauthAccess, oauthRefresh); err != nil {
					e.warn("provider token revocation failed",
						"accountId", accountID,
						"provider", account.OAuth.Provider,
						"error", err,
					)
				}
			}
		}
	}

	return e.Logout(w, sess, accountID)
}

// embeddedProviderTokens pulls provider tokens out of whichever bearer
// token still verifies. An expired access token is fine here, the
// refresh token usually carries the same payload.
func (e *Engine) embeddedProviderTokens(accessToken, refreshToken string) (string, string) {
	if claims, err := e.codec.VerifyAccess(accessToken); err == nil {
		if claims.OAuthAccessToken != "" || claims.OAuthRefreshToken != "" {
			return claims.OAuthAccessToken, claims.OAuthRefreshToken
		}
	}
	if claims, err := e.codec.VerifyRefresh(refreshToken); err == nil {
		return claims.OAuthAccessToken, claims.OAuthRefreshToken
	}
	return "", ""
}

// completeLogin issues the bearer tokens, writes the per-account
// cookies and adds the account to the session as current. Without
// rememberMe no refresh token exists, so the login ends with the access
// token.
func (e *Engine) completeLogin(w http.ResponseWriter, sess *session.Session, account *Account, embedded token.Embedded, rememberMe bool) (*LoginResult, error) {
	access, err := e.codec.IssueAccess(account.ID, string(account.Kind), e.accessTTL(account), embedded)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	refresh := ""
	if rememberMe {
		refresh, err = e.codec.IssueRefresh(account.ID, string(account.Kind), embedded)
		if err != nil {
			return nil, ErrTokenInvalid
		}
	}

	e.cookies.WriteAccess(w, account.ID, access)
	if refresh != "" {
		e.cookies.WriteRefresh(w, account.ID, refresh)
	}

	sess.AddAccount(account.ID, true)
	if err := e.writeSession(w, sess); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.notifyAsync(NotifyLogin, account.Email, map[string]string{
		"firstName": account.FirstName,
	})

	return &LoginResult{
		AccountID:    account.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// accessTTL honors a per-account session timeout when one is set.
func (e *Engine) accessTTL(account *Account) time.Duration {
	if account.Local != nil && account.Local.SessionTimeout > 0 {
		return account.Local.SessionTimeout
	}
	return e.config.Token.AccessTTL
}

// writeSession re-signs the session into its cookie, or clears the
// cookie when the session has no members left.
func (e *Engine) writeSession(w http.ResponseWriter, sess *session.Session) error {
	if sess.Empty() {
		e.cookies.ClearSession(w)
		return nil
	}
	value, err := e.sessions.EncodeSigned(sess)
	if err != nil {
		return ErrTokenInvalid
	}
	e.cookies.WriteSession(w, value)
	return nil
}
