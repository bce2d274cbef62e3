// Package logging initializes the process-wide logrus logger.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger from the configured level.
// Unknown levels fall back to info.
func Init(level string) *logrus.Logger {
	log := logrus.StandardLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}
