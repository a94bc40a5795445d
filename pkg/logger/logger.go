// Package logger wires logrus with console plus optional file output.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the run logger. When logFile is non-empty, lines are written
// to both stdout and the file.
func New(logFile string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, err
		}
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return log, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
