package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"CODStatusChecker/config"
	"CODStatusChecker/database"
	"CODStatusChecker/logger"
	"CODStatusChecker/services"
	"CODStatusChecker/store"

	"github.com/joho/godotenv"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Recovered from panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := run(); err != nil {
		logger.Log.WithError(err).Error("Exiting with error")
		os.Exit(1)
	}
}

func usage() error {
	fmt.Println(`Usage: codstatuschecker <command> [args]

Commands:
  check [email ...]     check ban status for all (or selected) accounts
  login [email ...]     log in and refresh SSO cookies for stored credentials
  validate [email ...]  probe stored SSO cookies, clearing invalid ones
  balance               show the remaining EZ-Captcha balance
  import <file>         import email/password pairs from a JSON file
  list                  list stored accounts
  delete <email>        delete an account and its credential
  set-key <api-key>     store the EZ-Captcha API key in config.json
  history <email>       show recent check history (requires DB_* env vars)`)
	return nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(os.Args) < 2 {
		return usage()
	}
	command := os.Args[1]
	args := os.Args[2:]

	st := store.New("", "")
	if err := st.Load(); err != nil {
		return fmt.Errorf("failed to load account store: %w", err)
	}

	solver := services.NewSolver(cfg.CaptchaPollInterval, cfg.CaptchaTimeout)
	client := services.NewActivisionClient()
	scheduler := services.NewScheduler(cfg, solver, client, nil, st)

	var history *database.HistoryStore
	if database.Enabled() {
		history, err = database.Connect()
		if err != nil {
			logger.Log.WithError(err).Warn("History database unavailable, checks will not be recorded")
		} else {
			scheduler.History = history
			logger.Log.Info("History database connected")
		}
	}

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		channelID := os.Getenv("DISCORD_CHANNEL_ID")
		if channelID == "" {
			logger.Log.Warn("DISCORD_TOKEN set without DISCORD_CHANNEL_ID, notifications disabled")
		} else {
			notifier, err := services.NewDiscordNotifier(token, channelID)
			if err != nil {
				logger.Log.WithError(err).Warn("Discord notifications unavailable")
			} else {
				defer notifier.Close()
				scheduler.Notifier = notifier
				logger.Log.Info("Discord notifications enabled")
			}
		}
	}

	switch command {
	case "check":
		return runBatch(scheduler, cfg, services.BatchCheck, args)
	case "login":
		return runBatch(scheduler, cfg, services.BatchLogin, args)
	case "validate":
		return runBatch(scheduler, cfg, services.BatchValidate, args)
	case "balance":
		return showBalance(cfg, solver)
	case "import":
		if len(args) != 1 {
			return errors.New("import requires a file path")
		}
		updated, added, err := st.ImportCredentials(args[0])
		if err != nil {
			return err
		}
		logger.Log.Infof("Loaded credentials from file: %d updated, %d added", updated, added)
		return nil
	case "list":
		for _, acct := range st.Accounts() {
			line := acct.Email
			if acct.Username != "" {
				line += fmt.Sprintf(" (%s)", acct.Username)
			}
			if acct.LastStatus != "" {
				line += " - " + acct.LastStatus
			}
			fmt.Println(line)
		}
		return nil
	case "delete":
		if len(args) != 1 {
			return errors.New("delete requires an email")
		}
		if !st.Delete(args[0]) {
			return fmt.Errorf("account %s not found", args[0])
		}
		if err := st.Save(); err != nil {
			return err
		}
		logger.Log.Infof("Account %s deleted", args[0])
		return nil
	case "set-key":
		if len(args) != 1 {
			return errors.New("set-key requires an API key")
		}
		cfg.EZCaptchaKey = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		logger.Log.Info("API key updated successfully")
		return nil
	case "history":
		if len(args) != 1 {
			return errors.New("history requires an email")
		}
		if history == nil {
			return errors.New("history database not configured, set the DB_* environment variables")
		}
		records, err := history.RecentChecks(args[0], 20)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%s  %s (bans: %d)\n", rec.CreatedAt.Format("2006-01-02 15:04"), rec.Status, rec.BanCount)
		}
		return nil
	default:
		return usage()
	}
}

func showBalance(cfg *config.Config, solver *services.Solver) error {
	if err := requireAPIKey(cfg); err != nil {
		return err
	}
	balance, err := solver.GetBalance(context.Background(), cfg.EZCaptchaKey)
	if err != nil {
		return fmt.Errorf("failed to fetch captcha balance: %w", err)
	}
	fmt.Printf("EZ-Captcha balance: %.2f\n", balance)
	return nil
}

func requireAPIKey(cfg *config.Config) error {
	if cfg.EZCaptchaKey == "" {
		return errors.New("EZ-Captcha API key not set, run set-key or set EZCAPTCHA_CLIENT_KEY")
	}
	return nil
}

func runBatch(scheduler *services.Scheduler, cfg *config.Config, kind services.BatchKind, selection []string) error {
	if kind != services.BatchValidate {
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sc
		logger.Log.Warn("Cancellation requested, finishing the current job...")
		cancel()
	}()

	var results []string
	for event := range scheduler.RunBatch(ctx, kind, selection) {
		switch event.Kind {
		case services.ProgressEvent:
			logger.Log.Infof("Progress: %d/%d", event.Index, event.Total)
			fmt.Println(event.Message)
			results = append(results, event.Message)
		case services.LogEvent:
			logger.Log.Info(event.Message)
		case services.FinishedEvent:
			logger.Log.Info(event.Message)
		}
	}

	signal.Stop(sc)

	if kind == services.BatchCheck && len(results) > 0 {
		filename, err := services.ExportResults(results)
		if err != nil {
			logger.Log.WithError(err).Error("Failed to export batch results")
		} else {
			logger.Log.Infof("Results exported to %s", filename)
		}
	}

	if scheduler.Notifier != nil {
		scheduler.Notifier.NotifyBatchFinished(kind.String(), results)
	}

	return nil
}
