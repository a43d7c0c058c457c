package domain

// SessionPayload is the identity summary stored server-side for a logged-in
// session. The session id itself travels in the cookie; this never does.
type SessionPayload struct {
	UserID      string      `json:"user_id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	AccountType AccountType `json:"account_type"`
}

// SessionFor builds the payload recorded when a user logs in.
func SessionFor(u *User) SessionPayload {
	return SessionPayload{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		AccountType: u.AccountType,
	}
}
