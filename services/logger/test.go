package logsvc

import (
	"log"
	"os"

	"github.com/kwanza/darasa/core"
)

// TestLogger logs to the standard logger only, without reporting anywhere.
// For tests and local tooling.
type TestLogger struct {
	std *log.Logger
}

var _ core.Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{std: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l TestLogger) Enable(bool) {}

func (l TestLogger) print(lvl, msg string, args []interface{}) {
	l.std.Printf("%s: %s", lvl, msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l TestLogger) Debug(msg string, args ...interface{}) { l.print("DEBUG", msg, args) }
func (l TestLogger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l TestLogger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l TestLogger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }
func (l TestLogger) Fatal(msg string, args ...interface{}) { l.print("FATAL", msg, args); os.Exit(1) }
