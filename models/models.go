package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is one tracked Activision account. Email is the unique key across
// the collection. Only the fields persisted by the accounts file carry JSON
// tags; linked IDs and ban details are re-derived on every check.
type Account struct {
	Email         string `json:"email"`
	Username      string `json:"username"`
	UnoID         string `json:"uno_id"`
	SSOCookie     string `json:"sso_cookie"`
	Platform      string `json:"platform"`
	LastStatus    string `json:"last_status"`
	LastCheckTime string `json:"last_check_time"`
	AccountAge    string `json:"account_age"`

	Password    string `json:"-"`
	PSNID       string `json:"-"`
	XBLID       string `json:"-"`
	SteamID     string `json:"-"`
	BattleID    string `json:"-"`
	CanAppeal   bool   `json:"-"`
	Bans        []Ban  `json:"-"`
	CookieError string `json:"-"`
}

// UpdateStatus records a new status together with the check timestamp.
func (a *Account) UpdateStatus(status string) {
	a.LastStatus = status
	a.LastCheckTime = time.Now().Format(time.RFC3339)
}

// Ban is one enforcement record from the ban appeal endpoint.
type Ban struct {
	Title       string `json:"title"`
	Enforcement string `json:"enforcement"`
	CanAppeal   bool   `json:"canAppeal"`
	Bar         struct {
		Status string `json:"Status"`
	} `json:"bar"`
}

const (
	EnforcementPermanent   = "PERMANENT"
	EnforcementUnderReview = "UNDER_REVIEW"

	AppealOpen   = "Open"
	AppealClosed = "Closed"
)

// LoginCredentials is one email/password pair from the credentials file.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountInfo is what a successful login yields.
type AccountInfo struct {
	Email     string
	Username  string
	UnoID     string
	SSOCookie string
}

// Profile is the support-site profile document.
type Profile struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Created  string          `json:"created"`
	Accounts []LinkedAccount `json:"accounts"`
}

// LinkedAccount is one platform identity attached to a profile.
type LinkedAccount struct {
	Provider string `json:"provider"`
	Username string `json:"username"`
}

// LinkedID returns the username linked for the given provider, or "".
func (p *Profile) LinkedID(provider string) string {
	for _, acc := range p.Accounts {
		if acc.Provider == provider {
			return acc.Username
		}
	}
	return ""
}

// BanCheckResult is the ban appeal endpoint payload.
type BanCheckResult struct {
	Error     string `json:"error"`
	Success   string `json:"success"`
	CanAppeal bool   `json:"canAppeal"`
	Bans      []Ban  `json:"bans"`
}

// CheckRecord is an optional per-check history row, written to MySQL when a
// database connection is configured.
type CheckRecord struct {
	gorm.Model
	Email      string `gorm:"index"`
	Status     string
	AccountAge string
	BanCount   int
}
