package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/coursehub/core"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		uname   string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcd1234", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcd123!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Johndoe1!", uname: "johndoe1", wantTag: pwdAttrSimTag},
		{name: "valid", pwd: "Pwd123!@", uname: "student"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTag string
			ValidatePassword(tt.pwd, "", tt.uname, "", func(tag string) { gotTag = tag })
			assert.Equal(t, tt.wantTag, gotTag)
		})
	}
}

func TestNewUserValidation(t *testing.T) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		nu      NewUser
		wantErr bool
	}{
		{
			name: "valid",
			nu:   NewUser{Name: "Jane", Username: "jane_doe", Password: "Pwd123!@", PasswordConfirm: "Pwd123!@", Roles: []string{RoleStudent}},
		},
		{
			name:    "missing username and email",
			nu:      NewUser{Name: "Jane", Password: "Pwd123!@", PasswordConfirm: "Pwd123!@"},
			wantErr: true,
		},
		{
			name:    "unknown role",
			nu:      NewUser{Name: "Jane", Email: "jane@test.cd", Password: "Pwd123!@", PasswordConfirm: "Pwd123!@", Roles: []string{"lol"}},
			wantErr: true,
		},
		{
			name:    "password mismatch",
			nu:      NewUser{Name: "Jane", Email: "jane@test.cd", Password: "Pwd123!@", PasswordConfirm: "Pwd123!#"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.nu)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRolePriorities(t *testing.T) {
	usr := User{Roles: []string{RoleStudent, RoleAdmin}}
	assert.True(t, usr.IsAdmin())
	assert.True(t, usr.IsStudent())
	assert.False(t, usr.IsInstructor())
	assert.Equal(t, 21, MaxRolePriority(usr.Roles))
	assert.Equal(t, 0, MaxRolePriority(nil))
}

func TestUserPassword(t *testing.T) {
	var usr User
	assert.NoError(t, usr.SetPassword("Pwd123!@"))
	assert.NoError(t, usr.CheckPassword("Pwd123!@"))
	assert.Error(t, usr.CheckPassword("nope"))
}
