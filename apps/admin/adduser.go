package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core/user"
)

// addUser creates an active user, validated like a user registered through the API.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) (user.User, error) {
	roles := user.StudentRoles
	if isAdmin {
		roles = []string{user.RoleAdminOwner}
	}
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	return usr, errors.Wrap(err, "creating user")
}
