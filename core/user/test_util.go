package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestUser creates an active user with the given roles. Its password is "Pwd123!@".
func CreateTestUser(t *testing.T, svc Service, name, uname string, roles ...string) User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	usr, err := svc.Create(context.Background(), NewUser{
		Name:            name,
		Username:        uname,
		Email:           uname + "@coursehub.test",
		Password:        "Pwd123!@",
		PasswordConfirm: "Pwd123!@",
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}
