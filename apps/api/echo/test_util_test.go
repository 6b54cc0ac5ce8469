package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/attendance"
	"github.com/kwanza/darasa/core/notification"
	"github.com/kwanza/darasa/core/user"
	cachesvc "github.com/kwanza/darasa/services/cache"
	emailsvc "github.com/kwanza/darasa/services/email"
	logsvc "github.com/kwanza/darasa/services/logger"
	dummydb "github.com/kwanza/darasa/storage/database/dummy"
)

type testEnv struct {
	server  Server
	auth    *jwtAuth
	conf    *core.Config
	usrSvc  user.Service
	usrRepo user.Repository
	db      *dummydb.DB
	mailSvc interface {
		core.EmailService
		Fail(error)
		Sent() []core.EmailMessage
	}
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		TestMode:                   true,
		AppName:                    "Darasa",
		SecretKey:                  "test-secret",
		PasswordChangeCooldown:     30 * 24 * time.Hour,
		PasswordResetMaxAttempts:   5,
		PasswordResetAttemptWindow: 15 * time.Minute,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
	}
	logger := logsvc.NewTestLogger()

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewDummyService()
	usrSvc := user.NewServiceMock(
		usrRepo, mailSvc, cachesvc.NewDummyCache(), cachesvc.NewDummyAttemptLimiter(), logger, conf,
	)
	attSvc := attendance.NewService(dummydb.NewAttendanceRepository(db), logger)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), usrRepo, logger)

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	server := NewServer(&Options{
		DisableReqLogs:  true,
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		AttendanceSvc:   attSvc,
		NotificationSvc: notifSvc,
	})
	return &testEnv{
		server:  server,
		auth:    newJWTAuth(conf),
		conf:    conf,
		usrSvc:  usrSvc,
		usrRepo: usrRepo,
		db:      db,
		mailSvc: mailSvc,
	}
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (env *testEnv) createUser(t *testing.T, uname string, roles []string) user.User {
	t.Helper()

	usr, err := env.usrSvc.Create(context.Background(), user.NewUser{
		Name:            uname,
		Username:        uname,
		Email:           uname + "@darasa.cd",
		Password:        "s3cretpwd",
		PasswordConfirm: "s3cretpwd",
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := env.auth.GenerateToken(env.auth.GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
