package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"

	"virtual-router/internal/config"
)

// Logger owns the process logger and its optional rotating file.
type Logger struct {
	*log.Logger
	file     *lumberjack.Logger
	instance string
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotating file as well. An unparsable level falls back to info.
func New(cfg config.LogSettings) *Logger {
	return NewWithOutput(cfg, os.Stderr)
}

func NewWithOutput(cfg config.LogSettings, console io.Writer) *Logger {
	l := &Logger{Logger: log.New(), instance: uuid.NewString()}

	out := console
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(console, l.file)
	}
	l.SetOutput(out)
	l.SetFormatter(&prefixed.TextFormatter{
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	})

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	l.SetLevel(level)
	return l
}

// Instance is the id attached to every entry of this process.
func (l *Logger) Instance() string {
	return l.instance
}

// Component returns an entry tagged with the component name. The prefixed
// formatter renders the "prefix" field ahead of the message.
func (l *Logger) Component(name string) *log.Entry {
	return l.WithFields(log.Fields{
		"prefix":   name,
		"instance": l.instance,
	})
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
