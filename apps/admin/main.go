package main

import (
	"log"
	"os"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
	cachesvc "github.com/kwanza/darasa/services/cache"
	emailsvc "github.com/kwanza/darasa/services/email"
	logsvc "github.com/kwanza/darasa/services/logger"
	"github.com/kwanza/darasa/storage/database"
	sqlxrepos "github.com/kwanza/darasa/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	svcLogger := logsvc.NewTestLogger()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(db.Ping())

	usrSvc := user.NewService(
		sqlxrepos.NewUserRepository(db),
		emailsvc.NewConsoleService(conf, svcLogger),
		cachesvc.NewDummyCache(),
		cachesvc.NewDummyAttemptLimiter(),
		svcLogger,
		conf,
	)

	// start CLI
	cli := commandLine{
		db:     db.DB,
		usrSvc: usrSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
