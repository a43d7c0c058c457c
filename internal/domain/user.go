package domain

import "time"

// AccountType enumerates the account roles the platform recognises.
type AccountType string

const (
	AccountTypeAgent AccountType = "agent"
	AccountTypeAdmin AccountType = "admin"
)

// Valid reports whether the account type is one the platform accepts.
func (a AccountType) Valid() bool {
	return a == AccountTypeAgent || a == AccountTypeAdmin
}

// IsAdmin reports whether the account carries admin capabilities. The
// admin guard and the login activation gate share this single check so
// role logic cannot drift.
func (a AccountType) IsAdmin() bool {
	return a == AccountTypeAdmin
}

// User represents a registered agent or admin account.
type User struct {
	ID               string
	Username         string
	PasswordHash     []byte
	Email            string
	Phone            string
	FirstName        string
	LastName         string
	Specialization   string
	YearStarted      int
	Bio              string
	LicenseID        string
	Brokerage        string
	BrokerageAddress string
	BrokerageNumber  string
	AccountType      AccountType
	Activated        bool
	LastLogin        *time.Time
	CreatedAt        time.Time
}

// DisplayName is the name shown in the dashboard header and session summary.
func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

// PublicUser is the JSON-facing projection of a User. It carries no
// credential material, so handlers can encode it without leaking the hash.
type PublicUser struct {
	ID               string      `json:"id"`
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone"`
	FirstName        string      `json:"firstName"`
	LastName         string      `json:"lastName"`
	Specialization   string      `json:"specialization,omitempty"`
	YearStarted      int         `json:"yearStarted"`
	Bio              string      `json:"bio,omitempty"`
	LicenseID        string      `json:"licenseId"`
	Brokerage        string      `json:"brokerage"`
	BrokerageAddress string      `json:"brokerageAddress"`
	BrokerageNumber  string      `json:"brokerageNumber"`
	AccountType      AccountType `json:"accountType"`
	Activated        bool        `json:"activated"`
	LastLogin        *time.Time  `json:"lastLogin,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Public returns the credential-free view of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Phone:            u.Phone,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Specialization:   u.Specialization,
		YearStarted:      u.YearStarted,
		Bio:              u.Bio,
		LicenseID:        u.LicenseID,
		Brokerage:        u.Brokerage,
		BrokerageAddress: u.BrokerageAddress,
		BrokerageNumber:  u.BrokerageNumber,
		AccountType:      u.AccountType,
		Activated:        u.Activated,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
	}
}

// PublicUsers maps a slice of users to their public projections.
func PublicUsers(users []User) []PublicUser {
	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}
