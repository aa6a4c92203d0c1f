// Package logx builds the process logger. Logs go to stderr so the explore
// table on stdout stays machine-readable.
package logx

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger filtered at the given level. An empty or
// unparseable level means info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		// Pad so messages line up across call sites.
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", file, line))
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Caller().Logger()
}
