package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		nu := user.NewUser{
			Name:            uname,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if isAdmin {
			nu.Roles = user.AllRoles
		}
		_, err = cli.usrSvc.Create(ctx, nu)
		return err
	}

	uu := user.UpdateUser{
		Name:            usr.Name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		uu.Roles = user.AllRoles
	} else {
		uu.Roles = usr.Roles
	}
	active := true
	uu.IsActive = &active
	_, err = cli.usrSvc.Update(ctx, usr.ID, uu)
	return err
}
