package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		logg.SetLevel(logrus.DebugLevel)
	case "warn":
		logg.SetLevel(logrus.WarnLevel)
	case "error":
		logg.SetLevel(logrus.ErrorLevel)
	default:
		logg.SetLevel(logrus.InfoLevel)
	}
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}

// LogPipelineEvent records one pipeline step keyed by reservation identity.
// Zero reservation/edition values are omitted so source-level events
// (run_start, digest_sent) stay compact.
func LogPipelineEvent(logger *logrus.Logger, moduleName string, event string, reservationNumber int, edition int, message string) {
	fields := logrus.Fields{
		"module": moduleName,
		"event":  event,
	}
	if reservationNumber != 0 {
		fields["reservation_number"] = reservationNumber
	}
	if edition != 0 {
		fields["edition"] = edition
	}
	if message != "" {
		fields["message"] = message
	}
	logger.WithFields(fields).Info(event)
}
