package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global zerolog logger to write human-readable output
// to stderr and JSON lines to a rotating log file.
func Setup(logPath string) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	var writer io.Writer = console
	if logPath != "" {
		file := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		writer = zerolog.MultiLevelWriter(console, file)
	}

	level := zerolog.InfoLevel
	if os.Getenv("DEBUG") == "true" {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
