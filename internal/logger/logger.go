package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the application-wide logger instance
var Log = logrus.New()

// Init configures the logger from environment variables
func Init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
}
