package app

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/james/internal/logger"
)

// DefaultLogFile is where commands log unless told otherwise.
const DefaultLogFile = ".james-logs/james.log"

// LoadEnv loads the .env file, overriding variables already set. A
// missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Overload(path)
}

// Level picks the log level from the -verbose / -quiet flags.
func Level(verbose, quiet bool) logger.Level {
	switch {
	case quiet:
		return logger.LevelOff
	case verbose:
		return logger.LevelVerbose
	}
	return logger.LevelNormal
}

// OpenLog directs logs to file (or stderr when file is "" or "stderr")
// and redirects the standard log package, used by some libraries, to
// the same writer. The returned func closes the file.
func OpenLog(file string, level logger.Level) (*logger.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	if file != "" && file != "stderr" {
		if dir := filepath.Dir(file); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", file, err)
		} else {
			out = f
			closeFn = func() { f.Close() }
		}
	}

	stdlog.SetOutput(out)
	stdlog.SetFlags(stdlog.Ltime)
	return logger.New(level, out), closeFn
}
