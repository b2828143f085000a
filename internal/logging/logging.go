package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from LOG_LEVEL. fallback is used
// when the variable is unset or unrecognised.
func Init(fallback logrus.Level) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	logrus.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL"), fallback))
}

// ParseLevel maps the LOG_LEVEL vocabulary onto a logrus level.
func ParseLevel(value string, fallback logrus.Level) logrus.Level {
	switch value {
	case "dev", "development", "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error", "production", "prod":
		return logrus.ErrorLevel
	default:
		return fallback
	}
}
