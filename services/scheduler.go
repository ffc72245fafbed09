package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"CODStatusChecker/config"
	"CODStatusChecker/errorhandler"
	"CODStatusChecker/logger"
	"CODStatusChecker/models"
	"CODStatusChecker/store"

	"golang.org/x/time/rate"
)

// BatchKind selects which per-account operation a batch runs.
type BatchKind int

const (
	BatchCheck BatchKind = iota
	BatchLogin
	BatchValidate
)

func (k BatchKind) String() string {
	switch k {
	case BatchCheck:
		return "check"
	case BatchLogin:
		return "login"
	case BatchValidate:
		return "validate"
	default:
		return "unknown"
	}
}

// EventKind discriminates scheduler events.
type EventKind int

const (
	// ProgressEvent reports one completed job, stamped with its input index.
	ProgressEvent EventKind = iota
	// LogEvent carries a human-readable line not tied to a single job.
	LogEvent
	// FinishedEvent is the terminal event of every batch, cancelled or not.
	FinishedEvent
)

// Event is one progress/log notification from a running batch. Index is
// 1-based and stamped from the job's position in the input collection, so
// observers see consistent numbering even when pooled completions arrive out
// of order.
type Event struct {
	Kind    EventKind
	Index   int
	Total   int
	Email   string
	Message string
	Err     error
}

// HistorySink receives per-check outcomes. The MySQL history store
// implements it; a nil sink disables recording.
type HistorySink interface {
	RecordCheck(email, status, accountAge string, banCount int) error
}

// Scheduler runs batches of per-account jobs against the store. Jobs run
// sequentially by default, or under a bounded worker pool when MaxWorkers is
// greater than one. Store mutation is serialized by the store itself.
type Scheduler struct {
	Config   *config.Config
	Solver   CaptchaSolver
	Client   SupportClient
	Agent    SessionAgent
	Store    *store.Store
	History  HistorySink
	Notifier StatusNotifier

	limiter *rate.Limiter
}

func NewScheduler(cfg *config.Config, solver CaptchaSolver, client SupportClient, agent SessionAgent, st *store.Store) *Scheduler {
	interval := cfg.CheckCooldown
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		Config:  cfg,
		Solver:  solver,
		Client:  client,
		Agent:   agent,
		Store:   st,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// RunBatch starts a batch over the selected emails (all accounts or
// credentials when selection is empty) and returns the event stream. The
// stream always terminates with a FinishedEvent. Cancellation is
// cooperative: the context is checked before each job starts and an
// in-flight job is allowed to finish.
func (s *Scheduler) RunBatch(ctx context.Context, kind BatchKind, selection []string) <-chan Event {
	events := make(chan Event, 16)
	go s.runBatch(ctx, kind, selection, events)
	return events
}

func (s *Scheduler) runBatch(ctx context.Context, kind BatchKind, selection []string, events chan<- Event) {
	defer close(events)

	jobs := s.collectJobs(kind, selection)
	total := len(jobs)

	logger.Log.Infof("Starting %s batch for %d accounts", kind, total)
	events <- Event{Kind: LogEvent, Total: total, Message: fmt.Sprintf("Starting %s batch for %d accounts", kind, total)}

	workers := s.Config.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	cancelled := false

	for i, job := range jobs {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := s.limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(index int, job batchJob) {
			defer wg.Done()
			defer func() { <-sem }()

			message, err := s.runJob(ctx, kind, job)
			events <- Event{
				Kind:    ProgressEvent,
				Index:   index + 1,
				Total:   total,
				Email:   job.email,
				Message: message,
				Err:     err,
			}
		}(i, job)
	}

	wg.Wait()

	if err := s.Store.Save(); err != nil {
		// Batch results stay in memory for retry or export.
		events <- Event{Kind: LogEvent, Total: total, Message: errorhandler.HandleError(err), Err: err}
	}

	if cancelled {
		events <- Event{Kind: FinishedEvent, Total: total, Message: "Batch cancelled", Err: ctx.Err()}
		return
	}
	events <- Event{Kind: FinishedEvent, Total: total, Message: "Batch finished"}
}

type batchJob struct {
	email   string
	account models.Account
	cred    models.LoginCredentials
}

func (s *Scheduler) collectJobs(kind BatchKind, selection []string) []batchJob {
	selected := func(email string) bool {
		if len(selection) == 0 {
			return true
		}
		for _, e := range selection {
			if e == email {
				return true
			}
		}
		return false
	}

	var jobs []batchJob
	if kind == BatchLogin {
		for _, cred := range s.Store.Credentials() {
			if selected(cred.Email) {
				jobs = append(jobs, batchJob{email: cred.Email, cred: cred})
			}
		}
		return jobs
	}

	for _, acct := range s.Store.Accounts() {
		if selected(acct.Email) {
			jobs = append(jobs, batchJob{email: acct.Email, account: acct})
		}
	}
	return jobs
}

// runJob executes one job and converts any failure into a per-account
// message. A job failure never aborts the batch.
func (s *Scheduler) runJob(ctx context.Context, kind BatchKind, job batchJob) (string, error) {
	var (
		message string
		err     error
	)

	switch kind {
	case BatchCheck:
		message, err = s.checkJob(ctx, job.account)
	case BatchLogin:
		message, err = s.loginJob(ctx, job.cred)
	case BatchValidate:
		message = s.validateJob(ctx, job.account)
	}

	if err != nil {
		errorhandler.HandleError(err)
		return fmt.Sprintf("%s: %v", job.email, err), err
	}
	return fmt.Sprintf("%s: %s", job.email, message), nil
}

// checkJob solves the status-page captcha, queries the ban endpoint and
// enriches the record with profile data and cookie expiry.
func (s *Scheduler) checkJob(ctx context.Context, account models.Account) (string, error) {
	token, err := s.Solver.Solve(ctx, s.Config.EZCaptchaKey, s.Config.StatusSiteKey, s.Config.PageURL)
	if err != nil {
		return "", err
	}

	result, err := s.Client.CheckBans(ctx, account.SSOCookie, token)
	if err != nil {
		return "", err
	}

	if result.Error != "" {
		// The endpoint reported its own failure; record it as the status
		// without profile or cookie enrichment.
		status := fmt.Sprintf("API error: %s", result.Error)
		s.Store.Upsert(account.Email, func(a *models.Account) {
			a.UpdateStatus(status)
		})
		if s.History != nil {
			if err := s.History.RecordCheck(account.Email, status, account.AccountAge, 0); err != nil {
				logger.Log.WithError(err).Warnf("Failed to record check history for %s", account.Email)
			}
		}
		return status, nil
	}

	banStatus := DetermineBanStatus(result.Bans)
	status := banStatus

	now := time.Now()
	accountAge := ""
	var psn, xbl, steam, battle, uno string
	profile, profileErr := s.Client.FetchProfile(ctx, account.SSOCookie)
	if profileErr != nil {
		accountAge = fmt.Sprintf("Error: %v", profileErr)
	} else {
		accountAge = FormatAccountAge(profile.Created, now)
		psn = profile.LinkedID("psn")
		xbl = profile.LinkedID("xbl")
		steam = profile.LinkedID("steam")
		battle = profile.LinkedID("battle")
		uno = profile.LinkedID("uno")
	}

	cookieReport := CookieExpiryReport(account.SSOCookie, now)
	cookieError := ""
	if strings.HasPrefix(cookieReport, "Error decoding cookie") {
		cookieError = cookieReport
	} else {
		status = status + "\n" + cookieReport
	}

	s.Store.Upsert(account.Email, func(a *models.Account) {
		a.UpdateStatus(status)
		a.AccountAge = accountAge
		a.CanAppeal = result.CanAppeal
		a.Bans = result.Bans
		a.CookieError = cookieError
		if psn != "" {
			a.PSNID = psn
		}
		if xbl != "" {
			a.XBLID = xbl
		}
		if steam != "" {
			a.SteamID = steam
		}
		if battle != "" {
			a.BattleID = battle
		}
		if uno != "" {
			a.UnoID = uno
		}
	})

	if s.History != nil {
		if err := s.History.RecordCheck(account.Email, status, accountAge, len(result.Bans)); err != nil {
			logger.Log.WithError(err).Warnf("Failed to record check history for %s", account.Email)
		}
	}

	if s.Notifier != nil && banStatusLine(account.LastStatus) != banStatus {
		s.Notifier.NotifyStatusChange(account.Email, account.LastStatus, status)
	}

	return status, nil
}

// banStatusLine strips the cookie expiry report appended below a stored
// status, so change detection ignores the countdown.
func banStatusLine(status string) string {
	if i := strings.Index(status, "\n"); i >= 0 {
		return status[:i]
	}
	return status
}

// loginJob solves the login-page captcha and delegates the browser flow to
// the session agent.
func (s *Scheduler) loginJob(ctx context.Context, cred models.LoginCredentials) (string, error) {
	if s.Agent == nil {
		return "", errorhandler.NewSessionError(errors.New("no session agent configured"), "login")
	}

	token, err := s.Solver.Solve(ctx, s.Config.EZCaptchaKey, s.Config.LoginSiteKey, s.Config.LoginURL)
	if err != nil {
		return "", err
	}

	info, err := s.Agent.Login(ctx, cred, token)
	if err != nil {
		return "", errorhandler.NewSessionError(err, "login")
	}

	s.Store.Upsert(cred.Email, func(a *models.Account) {
		if info.Username != "" {
			a.Username = info.Username
		}
		if info.UnoID != "" {
			a.UnoID = info.UnoID
		}
		a.SSOCookie = info.SSOCookie
		a.Password = cred.Password
	})

	return "Logged in and updated SSO cookie", nil
}

// validateJob probes the stored cookie without a captcha and clears it when
// invalid.
func (s *Scheduler) validateJob(ctx context.Context, account models.Account) string {
	if account.SSOCookie == "" {
		return "SSO Cookie is Invalid"
	}

	if s.Client.VerifyCookie(ctx, account.SSOCookie) {
		return "SSO Cookie is Valid"
	}

	s.Store.ClearCookie(account.Email)
	return "SSO Cookie is Invalid"
}

// ExportResults writes batch result lines to a timestamped text file and
// returns its name. Used to keep results when the store cannot be written,
// and after every check batch.
func ExportResults(results []string) (string, error) {
	filename := fmt.Sprintf("account_status_%s.txt", time.Now().Format("2006-01-02_15-04-05"))

	file, err := os.Create(filename)
	if err != nil {
		return "", errorhandler.NewStoreError(err, "create results export file")
	}
	defer file.Close()

	for _, result := range results {
		if _, err := file.WriteString(result + "\n"); err != nil {
			return "", errorhandler.NewStoreError(err, "write results export file")
		}
	}

	return filename, nil
}
