package database

import (
	"fmt"
	"os"
	"time"

	"CODStatusChecker/logger"
	"CODStatusChecker/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// HistoryStore records per-check outcomes to MySQL. It is an additive sink;
// the JSON files remain the source of truth for account state.
type HistoryStore struct {
	db *gorm.DB
}

// Enabled reports whether the history database is configured.
func Enabled() bool {
	return os.Getenv("DB_HOST") != ""
}

// Connect opens the history database from DB_* environment variables and
// migrates the check-record table.
func Connect() (*HistoryStore, error) {
	logger.Log.Info("Connecting to history database...")

	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	dbVar := os.Getenv("DB_VAR")

	if dbUser == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		return nil, fmt.Errorf("one or more DB_* environment variables not set")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s%s", dbUser, dbPassword, dbHost, dbPort, dbName, dbVar)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.CheckRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate check record table: %w", err)
	}

	store := &HistoryStore{db: db}
	go store.monitorHealth()

	return store, nil
}

func (h *HistoryStore) monitorHealth() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		sqlDB, err := h.db.DB()
		if err != nil {
			logger.Log.WithError(err).Error("Failed to get database instance for health check")
			continue
		}

		if err := sqlDB.Ping(); err != nil {
			logger.Log.WithError(err).Error("History database health check failed")
		}
	}
}

// RecordCheck appends one check outcome for the given email.
func (h *HistoryStore) RecordCheck(email, status, accountAge string, banCount int) error {
	record := models.CheckRecord{
		Email:      email,
		Status:     status,
		AccountAge: accountAge,
		BanCount:   banCount,
	}
	if err := h.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record check: %w", err)
	}
	return nil
}

// RecentChecks returns the most recent check records for an email, newest
// first.
func (h *HistoryStore) RecentChecks(email string, limit int) ([]models.CheckRecord, error) {
	var records []models.CheckRecord
	err := h.db.Where("email = ?", email).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load check history: %w", err)
	}
	return records, nil
}
