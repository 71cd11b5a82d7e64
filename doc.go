// Package accountd is an embeddable account lifecycle engine: signup
// with email verification, login with lockout and TOTP-based 2FA,
// password change and reset with history enforcement, JWT bearer
// tokens, and a signed multi-account session cookie that lets several
// accounts stay signed in side by side in one browser.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], the [AccountStore] and [Notifier] ports, and value types.
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// accountd never owns a listener or a router: flows take a
// http.ResponseWriter only to place cookies, and persistence lives
// behind [AccountStore] (see memstore and redistore for ready-made
// implementations). Outbound email goes through [Notifier];
// verification and reset emails are sent synchronously and roll back
// the triggering state change on failure, everything else is
// best-effort and retried off the request path.
//
// # Token model
//
// Access and refresh tokens are HS256 JWTs that carry the account kind
// and, for provider-backed accounts, the provider's own tokens. The
// session cookie is a separate HMAC-signed value that holds only the
// signed-in account ids and which one is current; it authenticates
// nothing by itself.
package accountd
