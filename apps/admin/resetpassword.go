package main

import (
	"context"

	"github.com/kwanza/darasa/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.getUser(uname)
	if err != nil {
		return err
	}
	// Update overwrites identity fields; carry them over from the record
	_, err = cli.usrSvc.Update(ctx, usr.ID, user.UpdateUser{
		Name:            usr.Name,
		Username:        usr.Username,
		Email:           usr.Email,
		Roles:           usr.Roles,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	return err
}
