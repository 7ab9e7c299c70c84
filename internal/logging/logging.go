package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// Setup configures the global logger. Debug mode switches to a human-readable
// console writer at debug level; otherwise JSON lines at info level go to stderr.
func Setup(debug bool) {
	setup(debug, os.Stderr)
}

func setup(debug bool, w io.Writer) {
	if debug {
		log.DefaultLogger = log.Logger{
			Level:      log.DebugLevel,
			Caller:     1,
			TimeFormat: "15:04:05",
			Writer: &log.ConsoleWriter{
				Writer:         w,
				ColorOutput:    false,
				EndWithMessage: true,
			},
		}
		return
	}

	log.DefaultLogger = log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.IOWriter{Writer: w},
	}
}
