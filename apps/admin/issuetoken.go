package main

import (
	"context"
	"fmt"
)

// issueToken issues a password-reset bypass token and prints it. The token
// is meant to be handed to the user out-of-band; it replaces any previously
// issued one.
func (cli *commandLine) issueToken(uname string) error {
	ctx := context.Background()
	usr, err := cli.getUser(uname)
	if err != nil {
		return err
	}
	token, err := cli.usrSvc.IssueBypassToken(ctx, usr.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Bypass token for %s: %s\n", usr.Username, token)
	return nil
}

func (cli *commandLine) revokeToken(uname string) error {
	ctx := context.Background()
	usr, err := cli.getUser(uname)
	if err != nil {
		return err
	}
	if err = cli.usrSvc.RevokeBypassToken(ctx, usr.ID); err != nil {
		return err
	}
	fmt.Printf("Bypass token for %s revoked\n", usr.Username)
	return nil
}
