package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/coursehub/apps/api/echo"
	"github.com/trezcool/coursehub/core/user"
	"github.com/trezcool/coursehub/storage/database/inmem"
)

func Test_userApi_login(t *testing.T) {
	a := setup(t)
	jane := user.CreateTestUser(t, a.usrSvc, "Jane", "jane_doe")
	naughty := user.CreateTestUser(t, a.usrSvc, "N Dog", "ndog_ndog")
	naughty.IsActive = false
	_, err := inmemdb.NewUserRepository(a.db).UpdateUser(context.Background(), naughty)
	require.NoError(t, err)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}

	runHTTPTests(t, a, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/login", body: login("nobody", "Pwd123!@"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: login("jane_doe", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login", body: login("ndog_ndog", "Pwd123!@"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		for _, uname := range []string{"jane_doe", " JANE_DOE ", jane.Email} {
			rec := a.do(http.MethodPost, "/api/users/login", "", login(uname, "Pwd123!@"))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			unmarchall(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			// the token authenticates the user
			rec = a.do(http.MethodGet, "/api/users/me", resp.Token)
			require.Equal(t, http.StatusOK, rec.Code)
			var me user.User
			unmarchall(t, rec, &me)
			assert.Equal(t, jane.ID, me.ID)
			assert.False(t, me.LastLogin.IsZero())
		}
	})
}

func Test_userApi_me(t *testing.T) {
	a := setup(t)
	ghost := user.User{ID: "ghost", Username: "ghost", Roles: []string{user.RoleStudent}}

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/users/me", token: "not-a-jwt",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "unknown user", path: "/api/users/me", token: a.getToken(t, ghost),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
	})
}

func Test_userApi_create(t *testing.T) {
	a := setup(t)
	student := user.CreateTestUser(t, a.usrSvc, "Student", "student")
	admin := user.CreateTestUser(t, a.usrSvc, "Admin", "admin_user", user.RoleAdmin)
	adminToken := a.getToken(t, admin)

	newUser := func(uname string, roles ...string) user.NewUser {
		return user.NewUser{
			Name:            "John",
			Username:        uname,
			Email:           uname + "@test.cd",
			Password:        "Secr3t!Pass",
			PasswordConfirm: "Secr3t!Pass",
			Roles:           roles,
		}
	}
	weak := newUser("john_doe")
	weak.Password, weak.PasswordConfirm = "password", "password"
	mismatch := newUser("john_doe")
	mismatch.PasswordConfirm = "Secr3t!Pas"

	runHTTPTests(t, a, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/api/users/register",
			body: marchallObj(t, newUser("john_doe")), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "admin required", method: http.MethodPost, path: "/api/users/register", token: a.getToken(t, student),
			body: marchallObj(t, newUser("john_doe")), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/api/users/register", token: adminToken,
			body:     marchallObj(t, newUser("student")),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/register", token: adminToken,
			body:     marchallObj(t, weak),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password": user.PasswordPolicyText("pwdcplx")}),
		},
		{
			name: "passwords mismatch", method: http.MethodPost, path: "/api/users/register", token: adminToken,
			body: marchallObj(t, mismatch), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown role", method: http.MethodPost, path: "/api/users/register", token: adminToken,
			body:     marchallObj(t, newUser("john_doe", "wizard:")),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
		{
			name: "role above own", method: http.MethodPost, path: "/api/users/register", token: adminToken,
			body:     marchallObj(t, newUser("john_doe", user.RoleAdminOwner)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/api/users/register", adminToken, marchallObj(t, newUser("john_doe", user.RoleInstructor)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarchall(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "john_doe", usr.Username)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleInstructor}, usr.Roles)
		assert.NotContains(t, rec.Body.String(), "password")

		rec = a.do(http.MethodPost, "/api/users/login", "", marchallObj(t, echoapi.LoginRequest{Username: "john_doe", Password: "Secr3t!Pass"}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	a := setup(t)
	jane := user.CreateTestUser(t, a.usrSvc, "Jane", "jane_doe")

	expired := echoapi.NewUserClaims(a.conf, jane)
	expired.OrigIssuedAt -= int64(2 * a.conf.Server.JWTRefreshExpirationDelta.Seconds())
	expiredToken, err := echoapi.GenerateToken(a.conf, expired)
	require.NoError(t, err)

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized},
		{
			name: "refresh expired", method: http.MethodPost, path: "/api/users/token-refresh", token: expiredToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/api/users/token-refresh", a.getToken(t, jane))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LoginResponse
		unmarchall(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}
