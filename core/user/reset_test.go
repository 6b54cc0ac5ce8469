package user_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
	cachesvc "github.com/kwanza/darasa/services/cache"
	emailsvc "github.com/kwanza/darasa/services/email"
	logsvc "github.com/kwanza/darasa/services/logger"
	dummydb "github.com/kwanza/darasa/storage/database/dummy"
)

var codeRegex = regexp.MustCompile(`\d{6}`)

func newTestConfig() *core.Config {
	return &core.Config{
		Debug:                    true,
		TestMode:                 true,
		AppName:                  "Darasa",
		PasswordChangeCooldown:   30 * 24 * time.Hour,
		PasswordResetMaxAttempts: 5,
	}
}

type resetEnv struct {
	svc     user.Service
	repo    user.Repository
	mailSvc interface {
		core.EmailService
		Fail(error)
		Sent() []core.EmailMessage
	}
	conf *core.Config
}

func setupReset(t *testing.T) *resetEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewDummyService()
	conf := newTestConfig()
	svc := user.NewServiceMock(
		repo, mailSvc, cachesvc.NewDummyCache(), cachesvc.NewDummyAttemptLimiter(), logsvc.NewTestLogger(), conf,
	)
	return &resetEnv{svc: svc, repo: repo, mailSvc: mailSvc, conf: conf}
}

func (env *resetEnv) createUser(t *testing.T, lastChange null.Time) user.User {
	t.Helper()

	usr := user.User{
		Name:                 "Awa Mulumba",
		Username:             "awamulumba",
		Email:                "awa@darasa.cd",
		IsActive:             true,
		Roles:                []string{user.RoleStudent},
		LastPasswordChangeAt: lastChange,
	}
	require.NoError(t, usr.SetPassword("or1ginal"))
	usr, err := env.repo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (env *resetEnv) sentCode(t *testing.T) string {
	t.Helper()

	sent := env.mailSvc.Sent()
	require.NotEmpty(t, sent, "expected a verification code email")
	code := codeRegex.FindString(sent[len(sent)-1].TextContent)
	require.Len(t, code, 6)
	return code
}

func TestResetFlow_RequestCode(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	flow := env.svc.NewResetFlow(usr)
	devCode, err := flow.RequestCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, devCode, "code must not surface locally when delivery succeeds")
	assert.Equal(t, user.StepVerifyToken, flow.Step())
	env.sentCode(t)

	// re-requesting generates a fresh code; the old one no longer verifies
	_, err = flow.RequestCode(ctx)
	require.NoError(t, err)
	assert.Len(t, env.mailSvc.Sent(), 2)
}

func TestResetFlow_RequestCode_cooldown(t *testing.T) {
	ctx := context.Background()
	day := 24 * time.Hour

	tests := []struct {
		name     string
		elapsed  time.Duration
		wantDays int
	}{
		{name: "changed just now", elapsed: 0, wantDays: 30},
		{name: "changed 1d ago", elapsed: 1 * day, wantDays: 29},
		{name: "changed 29.5d ago rounds up", elapsed: 29*day + 12*time.Hour, wantDays: 1},
		{name: "changed 29.9d ago rounds up", elapsed: 29*day + 23*time.Hour, wantDays: 1},
		{name: "cooldown just elapsed", elapsed: 30 * day, wantDays: 0},
		{name: "changed long ago", elapsed: 90 * day, wantDays: 0},
		{name: "never changed", elapsed: -1, wantDays: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupReset(t)

			lastChange := null.Time{}
			if tt.elapsed >= 0 {
				// pad a minute so the sub-day remainder stays on the intended side
				lastChange = null.TimeFrom(time.Now().UTC().Add(-tt.elapsed - time.Minute))
			}
			usr := env.createUser(t, lastChange)

			flow := env.svc.NewResetFlow(usr)
			_, err := flow.RequestCode(ctx)

			if tt.wantDays == 0 {
				assert.NoError(t, err)
				return
			}
			var rlErr core.RateLimitedError
			require.True(t, errors.As(err, &rlErr), "want RateLimitedError, got %v", err)
			assert.Equal(t, tt.wantDays, rlErr.DaysRemaining)
			assert.Equal(t, user.StepRequest, flow.Step())
		})
	}
}

func TestResetFlow_RequestCode_deliveryFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("debug falls back to local code", func(t *testing.T) {
		env := setupReset(t)
		usr := env.createUser(t, null.Time{})
		env.mailSvc.Fail(errors.New("smtp down"))

		flow := env.svc.NewResetFlow(usr)
		devCode, err := flow.RequestCode(ctx)
		require.NoError(t, err)
		require.Len(t, devCode, 6)
		assert.Equal(t, user.StepVerifyToken, flow.Step())

		// the locally surfaced code verifies
		require.NoError(t, flow.Verify(ctx, devCode))
		assert.Equal(t, user.StepSetPassword, flow.Step())
	})

	t.Run("production fails closed", func(t *testing.T) {
		env := setupReset(t)
		env.conf.Debug = false
		usr := env.createUser(t, null.Time{})
		env.mailSvc.Fail(errors.New("smtp down"))

		flow := env.svc.NewResetFlow(usr)
		devCode, err := flow.RequestCode(ctx)
		assert.Equal(t, core.ErrDeliveryFailed, errors.Cause(err))
		assert.Empty(t, devCode)
	})
}

func TestResetFlow_Verify_code(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	flow := env.svc.NewResetFlow(usr)
	_, err := flow.RequestCode(ctx)
	require.NoError(t, err)
	code := env.sentCode(t)

	// wrong entries keep the flow verifying
	assert.Equal(t, core.ErrInvalidToken, errors.Cause(flow.Verify(ctx, "000000")))
	assert.Equal(t, core.ErrInvalidToken, errors.Cause(flow.Verify(ctx, "")))
	assert.Equal(t, user.StepVerifyToken, flow.Step())

	require.NoError(t, flow.Verify(ctx, code))
	assert.Equal(t, user.StepSetPassword, flow.Step())
}

func TestResetFlow_Verify_codeFromAnotherFlow(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	flowA := env.svc.NewResetFlow(usr)
	_, err := flowA.RequestCode(ctx)
	require.NoError(t, err)
	codeA := env.sentCode(t)

	flowB := env.svc.NewResetFlow(usr)
	_, err = flowB.RequestCode(ctx)
	require.NoError(t, err)

	// the code generated for flow A never verifies in flow B
	err = flowB.Verify(ctx, codeA)
	assert.Equal(t, core.ErrInvalidToken, errors.Cause(err))
}

func TestResetFlow_Verify_attemptsExhausted(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	env.conf.PasswordResetMaxAttempts = 3
	usr := env.createUser(t, null.Time{})

	flow := env.svc.NewResetFlow(usr)
	_, err := flow.RequestCode(ctx)
	require.NoError(t, err)

	assert.Equal(t, core.ErrInvalidToken, errors.Cause(flow.Verify(ctx, "111111")))
	assert.Equal(t, core.ErrInvalidToken, errors.Cause(flow.Verify(ctx, "222222")))
	assert.Equal(t, core.ErrTooManyAttempts, errors.Cause(flow.Verify(ctx, "333333")))

	// the flow is aborted; the discarded code no longer verifies
	assert.Equal(t, user.StepRequest, flow.Step())
}

func TestResetFlow_Verify_bypassToken(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	token, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	flow := env.svc.NewResetFlow(usr)
	require.NoError(t, flow.UseBypassToken())
	assert.True(t, flow.UsingBypassToken())

	require.NoError(t, flow.Verify(ctx, token))
	assert.Equal(t, user.StepSetPassword, flow.Step())
}

func TestResetFlow_Verify_bypassTokenRevokedMidFlow(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	token, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	flow := env.svc.NewResetFlow(usr)
	require.NoError(t, flow.UseBypassToken())

	// token revoked after the flow started must not verify
	require.NoError(t, env.svc.RevokeBypassToken(ctx, usr.ID))
	err = flow.Verify(ctx, token)
	assert.Equal(t, core.ErrInvalidToken, errors.Cause(err))
}

func TestResetFlow_Verify_bypassTokenReplacedMidFlow(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	oldToken, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	flow := env.svc.NewResetFlow(usr)
	require.NoError(t, flow.UseBypassToken())

	// issuing again replaces the outstanding token
	newToken, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	assert.Equal(t, core.ErrInvalidToken, errors.Cause(flow.Verify(ctx, oldToken)))
	require.NoError(t, flow.Verify(ctx, newToken))
}

func TestResetFlow_Verify_bypassSkipsCooldown(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.TimeFrom(time.Now().UTC().Add(-24*time.Hour))) // in cooldown

	token, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	flow := env.svc.NewResetFlow(usr)
	require.NoError(t, flow.UseBypassToken())
	require.NoError(t, flow.Verify(ctx, token))
	require.NoError(t, flow.SetPassword(ctx, "n3wpassword", "n3wpassword"))
}

func TestResetFlow_SetPassword(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	token, err := env.svc.IssueBypassToken(ctx, usr.ID)
	require.NoError(t, err)

	flow := env.svc.NewResetFlow(usr)
	require.NoError(t, flow.UseBypassToken())
	require.NoError(t, flow.Verify(ctx, token))

	// invalid inputs leave the password untouched
	assert.Equal(t, core.ErrPasswordMismatch, errors.Cause(flow.SetPassword(ctx, "n3wpassword", "different")))
	assert.Equal(t, core.ErrPasswordTooWeak, errors.Cause(flow.SetPassword(ctx, "five5", "five5")))
	unchanged, err := env.repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, unchanged.CheckPassword("or1ginal"))

	require.NoError(t, flow.SetPassword(ctx, "n3wpassword", "n3wpassword"))
	assert.Equal(t, user.StepRequest, flow.Step())

	// hash, change stamp and token clear landed together
	refreshed, err := env.repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("n3wpassword"))
	assert.Error(t, refreshed.CheckPassword("or1ginal"))
	assert.True(t, refreshed.LastPasswordChangeAt.Valid)
	assert.False(t, refreshed.BypassToken.Valid, "bypass token must be cleared on password change")
}

func TestResetFlow_SetPassword_requiresVerification(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	flow := env.svc.NewResetFlow(usr)
	assert.Error(t, flow.SetPassword(ctx, "n3wpassword", "n3wpassword"))

	_, err := flow.RequestCode(ctx)
	require.NoError(t, err)
	assert.Error(t, flow.SetPassword(ctx, "n3wpassword", "n3wpassword"))
}

func TestResetFlow_changeStartsNewCooldown(t *testing.T) {
	ctx := context.Background()
	env := setupReset(t)
	usr := env.createUser(t, null.Time{})

	flow := env.svc.NewResetFlow(usr)
	_, err := flow.RequestCode(ctx)
	require.NoError(t, err)
	require.NoError(t, flow.Verify(ctx, env.sentCode(t)))
	require.NoError(t, flow.SetPassword(ctx, "n3wpassword", "n3wpassword"))

	// an immediate second request is rate limited for the full window
	_, err = flow.RequestCode(ctx)
	var rlErr core.RateLimitedError
	require.True(t, errors.As(err, &rlErr), "want RateLimitedError, got %v", err)
	assert.Equal(t, 30, rlErr.DaysRemaining)
}
