package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/coursehub/apps/api/echo"
	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/settings"
	"github.com/trezcool/coursehub/core/user"
	emailsvc "github.com/trezcool/coursehub/services/email"
	"github.com/trezcool/coursehub/services/notify"
	"github.com/trezcool/coursehub/storage/database/inmem"
	"github.com/trezcool/coursehub/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	*echoapi.Server
	conf    *core.Config
	db      *inmemdb.DB
	usrSvc  user.Service
	crsSvc  course.Service
	enrSvc  enrollment.Service
	mailSvc *emailsvc.ConsoleServiceMock
	logger  *testutil.Logger
	reqs    *requestRecorderMock
}

// setup returns a server backed by a fresh in-memory store, sending its notifications synchronously.
func setup(t *testing.T) *app {
	t.Helper()
	conf := testutil.NewConfig()
	logger := new(testutil.Logger)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	crsRepo := inmemdb.NewCourseRepository(db)
	usrSvc := user.NewService(inmemdb.NewUserRepository(db))
	setSvc := settings.NewService(inmemdb.NewSettingsRepository(db))

	tmpls := testutil.EmailTemplates(t, conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, tmpls, logger)

	enrSvc := enrollment.NewServiceMock(enrollment.Deps{
		Conf:     conf,
		Validate: validate,
		Repo:     inmemdb.NewEnrollmentRepository(db),
		Catalog:  enrollment.NewCatalogIndex(crsRepo),
		Users:    usrSvc,
		Settings: setSvc,
		Notifier: notify.NewEmailNotifier(mailSvc, tmpls, nil),
	})
	crsSvc := course.NewService(inmemdb.NewTransactor(), crsRepo, enrSvc)

	reqs := new(requestRecorderMock)
	return &app{
		Server: echoapi.NewServer(echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			Recorder:      reqs,
			UserSvc:       usrSvc,
			CourseSvc:     crsSvc,
			EnrollmentSvc: enrSvc,
			SettingsSvc:   setSvc,
		}),
		conf:    conf,
		db:      db,
		usrSvc:  usrSvc,
		crsSvc:  crsSvc,
		enrSvc:  enrSvc,
		mailSvc: mailSvc,
		logger:  logger,
		reqs:    reqs,
	}
}

func (a *app) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(a.conf, echoapi.NewUserClaims(a.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves the request and returns the recorded response.
func (a *app) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	a.ServeHTTP(rec, req)
	return rec
}

type requestRecorderMock struct {
	paths []string
}

func (r *requestRecorderMock) RecordHTTPRequest(method, path string, status int, _ float64) {
	r.paths = append(r.paths, method+" "+path+" "+http.StatusText(status))
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, a *app, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := a.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
