package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/kwanza/darasa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB
	usrSvc user.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - update or create a user; password prompted next")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password; password prompted next")
	fmt.Println("  issuetoken -username USERNAME|EMAIL - issue a password-reset bypass token")
	fmt.Println("  revoketoken -username USERNAME|EMAIL - revoke the user's bypass token")
	fmt.Println("  migrate COMMAND [ARGS] - run DB migrations (goose commands)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all admin roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	issueTokenCmd := flag.NewFlagSet("issuetoken", flag.ExitOnError)
	issueTokenUname := issueTokenCmd.String("username", "", "The user's username or email.")

	revokeTokenCmd := flag.NewFlagSet("revoketoken", flag.ExitOnError)
	revokeTokenUname := revokeTokenCmd.String("username", "", "The user's username or email.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "issuetoken":
		if err := issueTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueTokenUname == "" {
			issueTokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*issueTokenUname)
	case "revoketoken":
		if err := revokeTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeTokenUname == "" {
			revokeTokenCmd.Usage()
			return errHelp
		}
		return cli.revokeToken(*revokeTokenUname)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) getUser(uname string) (user.User, error) {
	return cli.usrSvc.GetByUsernameOrEmail(context.Background(), uname)
}
