// Package session models the multi-account browser session: the set of
// authenticated account ids plus the one currently active account, held
// client-side in a single signed cookie. The record has no server-side
// expiry; staleness is handled by per-account bearer token expiry.
package session

import "errors"

// ErrNotMember rejects a current-account switch to an id outside the
// session's membership set.
var ErrNotMember = errors.New("account is not a session member")

// Session is the membership record. Invariant: CurrentAccountID is
// either empty or an element of AccountIDs; it is empty exactly when
// AccountIDs is empty or no account is selected.
type Session struct {
	AccountIDs       []string
	CurrentAccountID string
}

// Contains reports membership of accountID.
func (s *Session) Contains(accountID string) bool {
	for _, id := range s.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// AddAccount inserts accountID, de-duplicating, and makes it current
// when setCurrent is true. An empty session always selects the first
// added account as current.
func (s *Session) AddAccount(accountID string, setCurrent bool) {
	if accountID == "" {
		return
	}
	if !s.Contains(accountID) {
		s.AccountIDs = append(s.AccountIDs, accountID)
	}
	if setCurrent || s.CurrentAccountID == "" {
		s.CurrentAccountID = accountID
	}
}

// RemoveAccount drops accountID from the set. When the removed id was
// current, the first remaining member is promoted, or current becomes
// empty for an emptied session.
func (s *Session) RemoveAccount(accountID string) {
	kept := s.AccountIDs[:0]
	for _, id := range s.AccountIDs {
		if id != accountID {
			kept = append(kept, id)
		}
	}
	s.AccountIDs = kept
	if s.CurrentAccountID == accountID {
		if len(s.AccountIDs) > 0 {
			s.CurrentAccountID = s.AccountIDs[0]
		} else {
			s.CurrentAccountID = ""
		}
	}
}

// SetCurrent switches the active account. An empty accountID deselects;
// a non-member id is rejected with ErrNotMember.
func (s *Session) SetCurrent(accountID string) error {
	if accountID == "" {
		s.CurrentAccountID = ""
		return nil
	}
	if !s.Contains(accountID) {
		return ErrNotMember
	}
	s.CurrentAccountID = accountID
	return nil
}

// Clear removes exactly the given ids, promoting current as
// RemoveAccount does. With no ids the whole session is discarded.
func (s *Session) Clear(accountIDs ...string) {
	if len(accountIDs) == 0 {
		s.AccountIDs = nil
		s.CurrentAccountID = ""
		return
	}
	for _, id := range accountIDs {
		s.RemoveAccount(id)
	}
}

// Empty reports whether no accounts remain.
func (s *Session) Empty() bool {
	return len(s.AccountIDs) == 0
}
