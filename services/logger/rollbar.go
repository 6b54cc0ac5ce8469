package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
)

// RollbarLogger reports to Rollbar and echoes everything to a standard
// logger so records are never lost when reporting is disabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// withPerson attaches a user.User arg (if any) to the report as the Rollbar
// person and passes the remaining args through. Only the first User counts.
func (l RollbarLogger) withPerson(msg string, args []interface{}) []interface{} {
	reportArgs := make([]interface{}, 0, len(args)+1)
	reportArgs = append(reportArgs, msg)

	var personSet bool
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			if !personSet {
				rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
				personSet = true
			}
			continue
		}
		reportArgs = append(reportArgs, arg)
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return reportArgs
}

func (l RollbarLogger) echo(lvl, msg string, args []interface{}) {
	l.std.Printf("%s: %s", lvl, msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.withPerson(msg, args)...)
	l.echo("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.withPerson(msg, args)...)
	l.echo("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.withPerson(msg, args)...)
	l.echo("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.withPerson(msg, args)...)
	l.echo("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.withPerson(msg, args)...)
	l.echo("FATAL", msg, args)
	l.std.Fatal(msg)
}
