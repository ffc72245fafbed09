package services

import (
	"context"

	"CODStatusChecker/models"
)

// SessionAgent performs one browser-driven login. Implementations live
// outside this core; the scheduler only supplies the solved captcha token
// before submission and consumes the resulting cookie plus account info
// afterwards.
type SessionAgent interface {
	Login(ctx context.Context, cred models.LoginCredentials, captchaToken string) (*models.AccountInfo, error)
}

// SupportClient covers the cookie-authenticated support-site calls a status
// check needs. ActivisionClient is the production implementation.
type SupportClient interface {
	CheckBans(ctx context.Context, ssoCookie, captchaToken string) (*models.BanCheckResult, error)
	FetchProfile(ctx context.Context, ssoCookie string) (*models.Profile, error)
	VerifyCookie(ctx context.Context, ssoCookie string) bool
}

// CaptchaSolver abstracts the captcha broker for the scheduler.
type CaptchaSolver interface {
	Solve(ctx context.Context, apiKey, siteKey, pageURL string) (string, error)
}
