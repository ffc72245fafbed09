package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"CODStatusChecker/errorhandler"
	"CODStatusChecker/logger"
	"CODStatusChecker/models"
)

const (
	AccountCheckURL = "https://support.activision.com/api/bans/v2/appeal?locale=en"
	ProfileURL      = "https://support.activision.com/api/profile"
)

// ActivisionClient talks to the support-site APIs with a stored SSO cookie.
// It implements SupportClient.
type ActivisionClient struct {
	Client     *http.Client
	CheckURL   string
	ProfileURL string
}

func NewActivisionClient() *ActivisionClient {
	return &ActivisionClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		CheckURL:   AccountCheckURL,
		ProfileURL: ProfileURL,
	}
}

func (c *ActivisionClient) get(ctx context.Context, reqURL, ssoCookie string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range GenerateHeaders(ssoCookie) {
		req.Header.Set(k, v)
	}
	return c.Client.Do(req)
}

// CheckBans calls the ban appeal endpoint with the session cookie and a
// solved captcha token.
func (c *ActivisionClient) CheckBans(ctx context.Context, ssoCookie, captchaToken string) (*models.BanCheckResult, error) {
	reqURL := fmt.Sprintf("%s&g-cc=%s", c.CheckURL, url.QueryEscape(captchaToken))

	resp, err := c.get(ctx, reqURL, ssoCookie)
	if err != nil {
		return nil, errorhandler.NewSessionError(err, "check account bans")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorhandler.NewSessionError(err, "read ban check response")
	}

	if len(body) == 0 {
		return nil, errorhandler.NewSessionError(
			fmt.Errorf("empty response body, cookie may be invalid"), "check account bans")
	}

	var result models.BanCheckResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errorhandler.NewParseError(err, "parse ban check response")
	}

	return &result, nil
}

// FetchProfile retrieves the support-site profile document for the session.
func (c *ActivisionClient) FetchProfile(ctx context.Context, ssoCookie string) (*models.Profile, error) {
	resp, err := c.get(ctx, c.ProfileURL, ssoCookie)
	if err != nil {
		return nil, errorhandler.NewSessionError(err, "fetch profile")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorhandler.NewSessionError(
			fmt.Errorf("unexpected status code: %d", resp.StatusCode), "fetch profile")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorhandler.NewSessionError(err, "read profile response")
	}

	var profile models.Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, errorhandler.NewParseError(err, "parse profile response")
	}

	return &profile, nil
}

// VerifyCookie reports whether the stored cookie still authenticates. It is a
// lightweight probe; no captcha is required.
func (c *ActivisionClient) VerifyCookie(ctx context.Context, ssoCookie string) bool {
	resp, err := c.get(ctx, c.ProfileURL, ssoCookie)
	if err != nil {
		logger.Log.WithError(err).Error("Error sending cookie verification request")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Log.Errorf("Invalid SSO cookie, status code: %d", resp.StatusCode)
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Log.WithError(err).Error("Error reading cookie verification response")
		return false
	}

	if len(body) == 0 {
		logger.Log.Error("Invalid SSO cookie, response body is empty")
		return false
	}

	return true
}
