package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	Log           *logrus.Logger
	logFile       *os.File
	lastRotation  time.Time
	rotationMutex sync.Mutex
)

const logDir = "logs/"

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.TextFormatter{
		ForceColors: true,
	})

	if err := os.MkdirAll(logDir, 0755); err != nil {
		Log.WithError(err).Warn("Failed to create log directory, logging to stdout only")
		return
	}

	rotateLog()

	go checkRotation()
}

func rotateLog() {
	rotationMutex.Lock()
	defer rotationMutex.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	logFileName := filepath.Join(logDir, time.Now().Format("2006-01-02")+".txt")
	newLogFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		Log.WithError(err).Warn("Failed to open new log file, logging to stdout only")
		return
	}

	logFile = newLogFile
	Log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	lastRotation = time.Now()
}

func checkRotation() {
	for {
		time.Sleep(1 * time.Hour)

		if time.Now().YearDay() != lastRotation.YearDay() {
			rotateLog()
			Log.Info("Log file rotated")
		}
	}
}
