package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}

	var policyErr error
	user.ValidatePassword(pwd, usr.Name, usr.Username, usr.Email, func(tag string) {
		policyErr = errors.New(user.PasswordPolicyText(tag))
	})
	if policyErr != nil {
		return policyErr
	}

	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return errors.Wrap(err, "setting password")
}
