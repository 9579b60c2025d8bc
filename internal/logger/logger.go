package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// Init инициализирует структурированный логгер.
// В development пишем текстом с полными метками времени, в остальных окружениях JSON.
func Init(env string) {
	Log = logrus.New()

	if env == "development" {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}

	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// WithFields возвращает запись лога с полями.
// До вызова Init (например, в тестах) записи уходят в никуда.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Log == nil {
		return logrus.NewEntry(discard)
	}
	return Log.WithFields(fields)
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()
