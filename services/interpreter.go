package services

import (
	"errors"
	"fmt"
	"time"

	"CODStatusChecker/models"
)

// Fixed status strings produced by the interpreter. The permanent-ban
// variants carry an appeal suffix when the appeal sub-status is known.
const (
	StatusNotBanned            = "Account not banned"
	StatusPermaban             = "Permanently banned"
	StatusPermabanAppealOpen   = "Permanently banned (Appeal Open)"
	StatusPermabanAppealDenied = "Permanently banned (Appeal Denied)"
	StatusShadowban            = "Shadowbanned"

	CookieExpired     = "Cookie has expired"
	CookieFormatError = "Unexpected cookie format"
)

// DetermineBanStatus maps a raw ban list to a normalized status string. A
// permanent ban always wins over an under-review one, and its appeal
// sub-status is resolved Open before Closed.
func DetermineBanStatus(bans []models.Ban) string {
	if len(bans) == 0 {
		return StatusNotBanned
	}

	hasPermanent := false
	hasUnderReview := false
	hasAppealOpen := false
	hasAppealClosed := false
	for _, ban := range bans {
		switch ban.Enforcement {
		case models.EnforcementPermanent:
			hasPermanent = true
		case models.EnforcementUnderReview:
			hasUnderReview = true
		}
		switch ban.Bar.Status {
		case models.AppealOpen:
			hasAppealOpen = true
		case models.AppealClosed:
			hasAppealClosed = true
		}
	}

	if hasPermanent {
		if hasAppealOpen {
			return StatusPermabanAppealOpen
		}
		if hasAppealClosed {
			return StatusPermabanAppealDenied
		}
		return StatusPermaban
	}
	if hasUnderReview {
		return StatusShadowban
	}

	return fmt.Sprintf("Unknown ban status: %s", bans[0].Enforcement)
}

// FormatAccountAge renders the age of an account created at the given
// RFC3339 timestamp. It uses a 365-day year and 30-day month approximation
// rather than calendar arithmetic. Any failure produces a textual status, not
// an error.
func FormatAccountAge(created string, now time.Time) string {
	if created == "" {
		return "Unknown"
	}

	createdTime, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	days := int(now.Sub(createdTime).Hours() / 24)
	years := days / 365
	months := (days % 365) / 30
	remDays := (days % 365) % 30

	return fmt.Sprintf("%d years, %d months, %d days", years, months, remDays)
}

// CookieExpiryReport decodes the session cookie and reports the remaining
// lifetime relative to now. Decode failures yield an error string embedding
// the reason.
func CookieExpiryReport(ssoCookie string, now time.Time) string {
	_, expiration, err := DecodeSSOCookie(ssoCookie)
	if err != nil {
		if errors.Is(err, ErrUnexpectedCookieFormat) {
			return CookieFormatError
		}
		return fmt.Sprintf("Error decoding cookie: %v", err)
	}

	timeLeft := expiration.Sub(now)
	if timeLeft <= 0 {
		return CookieExpired
	}

	days := int(timeLeft.Hours() / 24)
	hours := int(timeLeft.Hours()) % 24
	minutes := int(timeLeft.Minutes()) % 60

	return fmt.Sprintf("Cookie expires in: %d days, %d hours, %d minutes", days, hours, minutes)
}
