package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"CODStatusChecker/errorhandler"
	"CODStatusChecker/logger"
)

const (
	EZCaptchaAPIURL     = "https://api.ez-captcha.com/createTask"
	EZCaptchaResultURL  = "https://api.ez-captcha.com/getTaskResult"
	EZCaptchaBalanceURL = "https://api.ez-captcha.com/getBalance"
	EZCaptchaAppID      = "84291"

	DefaultPollInterval = 10 * time.Second
	DefaultSolveTimeout = 120 * time.Second
)

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	AppID     string `json:"appId"`
	Task      task   `json:"task"`
}

type task struct {
	Type        string `json:"type"`
	WebsiteURL  string `json:"websiteURL"`
	WebsiteKey  string `json:"websiteKey"`
	IsInvisible bool   `json:"isInvisible"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

type getTaskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type getTaskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solver drives the EZ-Captcha create-task/poll-result protocol. A single
// Solver is safe for use from concurrent jobs; each Solve call is
// independent.
type Solver struct {
	Client       *http.Client
	CreateURL    string
	ResultURL    string
	BalanceURL   string
	PollInterval time.Duration
	SolveTimeout time.Duration
}

func NewSolver(pollInterval, solveTimeout time.Duration) *Solver {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if solveTimeout <= 0 {
		solveTimeout = DefaultSolveTimeout
	}
	return &Solver{
		Client:       &http.Client{Timeout: 30 * time.Second},
		CreateURL:    EZCaptchaAPIURL,
		ResultURL:    EZCaptchaResultURL,
		BalanceURL:   EZCaptchaBalanceURL,
		PollInterval: pollInterval,
		SolveTimeout: solveTimeout,
	}
}

// Solve submits a ReCaptchaV2 task for the given site key and page URL, then
// polls until the solution is ready. It never blocks past the configured
// solve timeout.
func (s *Solver) Solve(ctx context.Context, apiKey, siteKey, pageURL string) (string, error) {
	taskID, err := s.createTask(ctx, apiKey, siteKey, pageURL)
	if err != nil {
		return "", err
	}

	logger.Log.Infof("Captcha task created. Task ID: %s", taskID)

	deadline := time.Now().Add(s.SolveTimeout)
	for {
		result, err := s.getTaskResult(ctx, apiKey, taskID)
		if err != nil {
			return "", err
		}

		if result.ErrorID != 0 {
			return "", errorhandler.NewBrokerError(
				fmt.Errorf("EZ-Captcha error: %s", result.ErrorDescription), "poll captcha result")
		}

		switch result.Status {
		case "ready":
			logger.Log.Info("Captcha solved successfully")
			return result.Solution.GRecaptchaResponse, nil
		case "processing":
		default:
			return "", errorhandler.NewBrokerError(
				fmt.Errorf("unexpected captcha status: %q", result.Status), "poll captcha result")
		}

		select {
		case <-ctx.Done():
			return "", errorhandler.NewBrokerError(ctx.Err(), "captcha solving cancelled")
		case <-time.After(s.PollInterval):
		}

		if time.Now().After(deadline) {
			return "", errorhandler.NewBrokerError(
				errors.New("captcha solving timed out"), "poll captcha result")
		}
	}
}

func (s *Solver) createTask(ctx context.Context, apiKey, siteKey, pageURL string) (string, error) {
	payload := createTaskRequest{
		ClientKey: apiKey,
		AppID:     EZCaptchaAppID,
		Task: task{
			Type:        "ReCaptchaV2TaskProxyless",
			WebsiteURL:  pageURL,
			WebsiteKey:  siteKey,
			IsInvisible: false,
		},
	}

	var result createTaskResponse
	if err := s.postJSON(ctx, s.CreateURL, payload, &result); err != nil {
		return "", errorhandler.NewBrokerError(err, "create captcha task")
	}

	if result.ErrorID != 0 {
		return "", errorhandler.NewBrokerError(
			fmt.Errorf("EZ-Captcha error: %s", result.ErrorDescription), "create captcha task")
	}

	return result.TaskID, nil
}

func (s *Solver) getTaskResult(ctx context.Context, apiKey, taskID string) (*getTaskResultResponse, error) {
	payload := getTaskResultRequest{
		ClientKey: apiKey,
		TaskID:    taskID,
	}

	var result getTaskResultResponse
	if err := s.postJSON(ctx, s.ResultURL, payload, &result); err != nil {
		return nil, errorhandler.NewBrokerError(err, "get captcha task result")
	}

	return &result, nil
}

// GetBalance returns the remaining EZ-Captcha balance for the given key.
func (s *Solver) GetBalance(ctx context.Context, apiKey string) (float64, error) {
	payload := map[string]string{
		"clientKey": apiKey,
	}

	var result struct {
		ErrorID          int     `json:"errorId"`
		ErrorDescription string  `json:"errorDescription"`
		Balance          float64 `json:"balance"`
	}
	if err := s.postJSON(ctx, s.BalanceURL, payload, &result); err != nil {
		return 0, errorhandler.NewBrokerError(err, "get captcha balance")
	}

	if result.ErrorID != 0 {
		return 0, errorhandler.NewBrokerError(
			fmt.Errorf("EZ-Captcha error: %s", result.ErrorDescription), "get captcha balance")
	}

	return result.Balance, nil
}

func (s *Solver) postJSON(ctx context.Context, url string, payload, result any) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}
