package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"CODStatusChecker/config"
	"CODStatusChecker/models"
	"CODStatusChecker/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSolver struct {
	token string
	err   error
	calls int
}

func (f *fakeSolver) Solve(ctx context.Context, apiKey, siteKey, pageURL string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeSupportClient struct {
	failCookies   map[string]bool
	bansByCookie  map[string][]models.Ban
	errorByCookie map[string]string
	validCookies  map[string]bool
	profileCreate string
	profileCalls  int
}

func (f *fakeSupportClient) CheckBans(ctx context.Context, ssoCookie, captchaToken string) (*models.BanCheckResult, error) {
	if f.failCookies[ssoCookie] {
		return nil, errors.New("simulated ban check failure")
	}
	if msg, ok := f.errorByCookie[ssoCookie]; ok {
		return &models.BanCheckResult{Error: msg}, nil
	}
	return &models.BanCheckResult{Bans: f.bansByCookie[ssoCookie]}, nil
}

func (f *fakeSupportClient) FetchProfile(ctx context.Context, ssoCookie string) (*models.Profile, error) {
	f.profileCalls++
	return &models.Profile{
		Created: f.profileCreate,
		Accounts: []models.LinkedAccount{
			{Provider: "uno", Username: "uno-" + ssoCookie},
			{Provider: "psn", Username: "psn-" + ssoCookie},
		},
	}, nil
}

func (f *fakeSupportClient) VerifyCookie(ctx context.Context, ssoCookie string) bool {
	return f.validCookies[ssoCookie]
}

type fakeNotifier struct {
	changes []string
}

func (f *fakeNotifier) NotifyStatusChange(email, oldStatus, newStatus string) {
	f.changes = append(f.changes, email)
}

func (f *fakeNotifier) NotifyBatchFinished(kind string, results []string) {}

type fakeAgent struct {
	err error
}

func (f *fakeAgent) Login(ctx context.Context, cred models.LoginCredentials, captchaToken string) (*models.AccountInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.AccountInfo{
		Email:     cred.Email,
		Username:  "user-" + cred.Email,
		UnoID:     "uno-" + cred.Email,
		SSOCookie: "fresh-cookie-" + cred.Email,
	}, nil
}

func testConfig(workers int) *config.Config {
	return &config.Config{
		EZCaptchaKey:  "test-key",
		LoginSiteKey:  config.DefaultLoginSiteKey,
		StatusSiteKey: config.DefaultStatusSiteKey,
		LoginURL:      config.DefaultLoginURL,
		PageURL:       config.DefaultPageURL,
		MaxWorkers:    workers,
		CheckCooldown: time.Millisecond,
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "accounts.json"), filepath.Join(dir, "login_credentials.json"))
	require.NoError(t, st.Load())
	return st
}

func collectEvents(t *testing.T, events <-chan Event) (progress []Event, finished Event) {
	t.Helper()
	sawFinished := false
	for event := range events {
		switch event.Kind {
		case ProgressEvent:
			assert.False(t, sawFinished, "no progress after the finished event")
			progress = append(progress, event)
		case FinishedEvent:
			finished = event
			sawFinished = true
		}
	}
	assert.True(t, sawFinished, "batch must emit a terminal finished event")
	return progress, finished
}

func TestRunBatch_OneFailureDoesNotAbort(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{failCookies: map[string]bool{}, bansByCookie: map[string][]models.Ban{}}
	for i := 1; i <= 5; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		cookie := fmt.Sprintf("cookie%d", i)
		st.Upsert(email, func(a *models.Account) { a.SSOCookie = cookie })
	}
	client.failCookies["cookie3"] = true

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, finished := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))

	require.Len(t, progress, 5, "all jobs complete despite the failure")
	assert.Equal(t, "Batch finished", finished.Message)

	failures := 0
	for _, event := range progress {
		if event.Err != nil {
			failures++
			assert.Equal(t, 3, event.Index)
			assert.Equal(t, "user3@example.com", event.Email)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestRunBatch_SequentialPreservesInputOrder(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{bansByCookie: map[string][]models.Ban{}}
	for i := 1; i <= 4; i++ {
		email := fmt.Sprintf("seq%d@example.com", i)
		cookie := fmt.Sprintf("c%d", i)
		st.Upsert(email, func(a *models.Account) { a.SSOCookie = cookie })
	}

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))

	require.Len(t, progress, 4)
	for i, event := range progress {
		assert.Equal(t, i+1, event.Index)
		assert.Equal(t, 4, event.Total)
	}
}

func TestRunBatch_PooledStampsIndexes(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{bansByCookie: map[string][]models.Ban{}}
	for i := 1; i <= 10; i++ {
		email := fmt.Sprintf("pool%d@example.com", i)
		cookie := fmt.Sprintf("p%d", i)
		st.Upsert(email, func(a *models.Account) { a.SSOCookie = cookie })
	}

	scheduler := NewScheduler(testConfig(5), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))

	require.Len(t, progress, 10)
	seen := map[int]bool{}
	for _, event := range progress {
		assert.False(t, seen[event.Index], "each index reported exactly once")
		seen[event.Index] = true
		assert.GreaterOrEqual(t, event.Index, 1)
		assert.LessOrEqual(t, event.Index, 10)
	}
}

func TestRunBatch_CancelledBeforeStart(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{bansByCookie: map[string][]models.Ban{}}
	st.Upsert("a@example.com", func(a *models.Account) { a.SSOCookie = "c" })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, finished := collectEvents(t, scheduler.RunBatch(ctx, BatchCheck, nil))

	assert.Empty(t, progress)
	assert.Equal(t, "Batch cancelled", finished.Message)
	assert.Error(t, finished.Err)
}

func TestRunBatch_CheckUpdatesAccountFields(t *testing.T) {
	st := testStore(t)
	cookie := encodeCookie("9001", time.Now().Add(48*time.Hour).Unix(), "hash")
	st.Upsert("banned@example.com", func(a *models.Account) { a.SSOCookie = cookie })

	client := &fakeSupportClient{
		bansByCookie: map[string][]models.Ban{
			cookie: {ban("PERMANENT", "Open")},
		},
		profileCreate: time.Now().AddDate(-2, 0, 0).Format(time.RFC3339),
	}

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))
	require.Len(t, progress, 1)
	assert.NoError(t, progress[0].Err)

	acct, ok := st.Get("banned@example.com")
	require.True(t, ok)
	assert.Contains(t, acct.LastStatus, StatusPermabanAppealOpen)
	assert.Contains(t, acct.LastStatus, "Cookie expires in:")
	assert.NotEmpty(t, acct.LastCheckTime)
	assert.Contains(t, acct.AccountAge, "years")
	assert.Equal(t, "psn-"+cookie, acct.PSNID)
	assert.Equal(t, "uno-"+cookie, acct.UnoID)
}

func TestRunBatch_NoNotificationWhenBanStatusUnchanged(t *testing.T) {
	st := testStore(t)
	cookie := encodeCookie("42", time.Now().Add(72*time.Hour).Unix(), "hash")
	st.Upsert("same@example.com", func(a *models.Account) {
		a.SSOCookie = cookie
		// A previous check recorded the same ban status with an older
		// countdown below it.
		a.LastStatus = StatusNotBanned + "\nCookie expires in: 3 days, 11 hours, 59 minutes"
	})

	client := &fakeSupportClient{
		bansByCookie:  map[string][]models.Ban{},
		profileCreate: time.Now().AddDate(-1, 0, 0).Format(time.RFC3339),
	}
	notifier := &fakeNotifier{}
	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	scheduler.Notifier = notifier

	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))
	require.Len(t, progress, 1)
	assert.NoError(t, progress[0].Err)

	assert.Empty(t, notifier.changes, "countdown drift alone is not a status change")
}

func TestRunBatch_NotifiesOnBanStatusChange(t *testing.T) {
	st := testStore(t)
	cookie := encodeCookie("43", time.Now().Add(72*time.Hour).Unix(), "hash")
	st.Upsert("flagged@example.com", func(a *models.Account) {
		a.SSOCookie = cookie
		a.LastStatus = StatusNotBanned + "\nCookie expires in: 3 days, 11 hours, 59 minutes"
	})

	client := &fakeSupportClient{
		bansByCookie: map[string][]models.Ban{
			cookie: {ban("UNDER_REVIEW", "")},
		},
		profileCreate: time.Now().AddDate(-1, 0, 0).Format(time.RFC3339),
	}
	notifier := &fakeNotifier{}
	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	scheduler.Notifier = notifier

	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))
	require.Len(t, progress, 1)

	assert.Equal(t, []string{"flagged@example.com"}, notifier.changes)
}

func TestRunBatch_APIErrorIsRecordedAlone(t *testing.T) {
	st := testStore(t)
	st.Upsert("erroring@example.com", func(a *models.Account) { a.SSOCookie = "err-cookie" })

	client := &fakeSupportClient{
		errorByCookie: map[string]string{"err-cookie": "rate limited"},
	}
	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))
	require.Len(t, progress, 1)
	assert.NoError(t, progress[0].Err)

	acct, ok := st.Get("erroring@example.com")
	require.True(t, ok)
	assert.Equal(t, "API error: rate limited", acct.LastStatus)
	assert.NotEmpty(t, acct.LastCheckTime)
	assert.Zero(t, client.profileCalls, "no profile enrichment on an endpoint error")
}

func TestRunBatch_LoginUpdatesStore(t *testing.T) {
	st := testStore(t)
	st.UpsertCredential("fresh@example.com", "hunter2")

	client := &fakeSupportClient{}
	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, &fakeAgent{}, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchLogin, nil))

	require.Len(t, progress, 1)
	assert.NoError(t, progress[0].Err)

	acct, ok := st.Get("fresh@example.com")
	require.True(t, ok)
	assert.Equal(t, "user-fresh@example.com", acct.Username)
	assert.Equal(t, "uno-fresh@example.com", acct.UnoID)
	assert.Equal(t, "fresh-cookie-fresh@example.com", acct.SSOCookie)
}

func TestRunBatch_LoginWithoutAgentFails(t *testing.T) {
	st := testStore(t)
	st.UpsertCredential("nobody@example.com", "pw")

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, &fakeSupportClient{}, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchLogin, nil))

	require.Len(t, progress, 1)
	require.Error(t, progress[0].Err)
	assert.Contains(t, progress[0].Err.Error(), "no session agent configured")
}

func TestRunBatch_ValidateClearsInvalidCookie(t *testing.T) {
	st := testStore(t)
	st.Upsert("good@example.com", func(a *models.Account) { a.SSOCookie = "good-cookie" })
	st.Upsert("bad@example.com", func(a *models.Account) { a.SSOCookie = "bad-cookie" })

	client := &fakeSupportClient{validCookies: map[string]bool{"good-cookie": true}}
	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchValidate, nil))

	require.Len(t, progress, 2)

	good, _ := st.Get("good@example.com")
	assert.Equal(t, "good-cookie", good.SSOCookie)

	bad, _ := st.Get("bad@example.com")
	assert.Empty(t, bad.SSOCookie)
}

func TestRunBatch_SelectionFiltersJobs(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{bansByCookie: map[string][]models.Ban{}}
	st.Upsert("one@example.com", func(a *models.Account) { a.SSOCookie = "c1" })
	st.Upsert("two@example.com", func(a *models.Account) { a.SSOCookie = "c2" })
	st.Upsert("three@example.com", func(a *models.Account) { a.SSOCookie = "c3" })

	scheduler := NewScheduler(testConfig(1), &fakeSolver{token: "tok"}, client, nil, st)
	progress, _ := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, []string{"two@example.com"}))

	require.Len(t, progress, 1)
	assert.Equal(t, "two@example.com", progress[0].Email)
	assert.Equal(t, 1, progress[0].Total)
}

func TestRunBatch_SolverFailureIsPerAccount(t *testing.T) {
	st := testStore(t)
	client := &fakeSupportClient{bansByCookie: map[string][]models.Ban{}}
	st.Upsert("a@example.com", func(a *models.Account) { a.SSOCookie = "ca" })
	st.Upsert("b@example.com", func(a *models.Account) { a.SSOCookie = "cb" })

	solver := &fakeSolver{err: errors.New("captcha solving timed out")}
	scheduler := NewScheduler(testConfig(1), solver, client, nil, st)
	progress, finished := collectEvents(t, scheduler.RunBatch(context.Background(), BatchCheck, nil))

	require.Len(t, progress, 2)
	for _, event := range progress {
		assert.Error(t, event.Err)
	}
	assert.Equal(t, "Batch finished", finished.Message)
}
