package user

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math"
	"math/big"

	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
)

// ResetStep is a step of the password-reset flow.
type ResetStep int

const (
	// StepRequest awaits a verification code request or an admin bypass token.
	StepRequest ResetStep = iota
	// StepVerifyToken awaits the emailed code or the bypass token.
	StepVerifyToken
	// StepSetPassword awaits the new password.
	StepSetPassword
)

// ErrFlowStep reports an operation attempted out of order.
var ErrFlowStep = errors.New("operation not allowed in the current step")

// ResetFlow drives a password change through request, verification and
// password-set steps. The generated code only ever lives in this flow (and
// the email); it is never persisted, so a tampered store cannot forge it.
// A flow is bound to one user and is not safe for concurrent use.
type ResetFlow struct {
	svc *service
	usr User

	step             ResetStep
	usingBypassToken bool
	code             string
}

func (svc *service) NewResetFlow(usr User) *ResetFlow {
	return &ResetFlow{svc: svc, usr: usr}
}

func (f *ResetFlow) Step() ResetStep        { return f.step }
func (f *ResetFlow) UsingBypassToken() bool { return f.usingBypassToken }

// RequestCode generates a fresh 6-digit verification code and emails it to
// the user, moving the flow to StepVerifyToken. Re-requesting overwrites the
// previous code; the store is untouched.
//
// When delivery fails in Debug mode the code is returned for local display
// instead. Outside Debug, delivery failure fails the request closed.
func (f *ResetFlow) RequestCode(ctx context.Context) (devCode string, err error) {
	if f.step == StepSetPassword {
		return "", errors.Wrap(ErrFlowStep, "requesting code")
	}

	// the cooldown is checked against the freshly persisted profile, not the
	// snapshot the flow was created with
	usr, err := f.svc.repo.GetUserByID(ctx, f.usr.ID)
	if err != nil {
		return "", errors.Wrap(err, "reloading user")
	}
	f.usr = usr
	f.usingBypassToken = false

	if days := f.cooldownDaysRemaining(); days > 0 {
		return "", core.RateLimitedError{DaysRemaining: days}
	}

	code, err := generateCode()
	if err != nil {
		return "", errors.Wrap(err, "generating verification code")
	}

	if err := f.svc.sendResetCodeMail(f.usr, code); err != nil {
		if !f.svc.conf.Debug {
			return "", errors.Wrap(core.ErrDeliveryFailed, err.Error())
		}
		// dev fallback: surface the code locally instead of failing
		f.svc.logger.Warn(fmt.Sprintf("code delivery failed for user %s; falling back to local display: %v", f.usr.ID, err), err)
		devCode = code
	}

	f.code = code
	f.step = StepVerifyToken
	return devCode, nil
}

// UseBypassToken switches the flow to admin-token verification. No code is
// generated and the change cooldown does not apply.
func (f *ResetFlow) UseBypassToken() error {
	if f.step == StepSetPassword {
		return errors.Wrap(ErrFlowStep, "switching to bypass token")
	}
	f.code = ""
	f.usingBypassToken = true
	f.step = StepVerifyToken
	return nil
}

// Verify checks the entered code or bypass token. An invalid entry keeps the
// flow at StepVerifyToken; too many failed entries abort the flow.
func (f *ResetFlow) Verify(ctx context.Context, entered string) error {
	if f.step != StepVerifyToken {
		return errors.Wrap(ErrFlowStep, "verifying")
	}

	var want string
	if f.usingBypassToken {
		// re-read the persisted token: a token revoked or replaced since the
		// flow started must not verify
		usr, err := f.svc.repo.GetUserByID(ctx, f.usr.ID)
		if err != nil {
			return errors.Wrap(err, "reloading user")
		}
		f.usr = usr
		if !usr.BypassToken.Valid {
			return f.failedAttempt(ctx)
		}
		want = usr.BypassToken.String
	} else {
		want = f.code
	}

	if want == "" || entered == "" ||
		subtle.ConstantTimeCompare([]byte(entered), []byte(want)) == 0 {
		return f.failedAttempt(ctx)
	}

	if err := f.svc.limiter.Reset(ctx, f.attemptKey()); err != nil {
		f.svc.logger.Warn(fmt.Sprintf("resetting attempt counter for user %s: %v", f.usr.ID, err), err)
	}
	f.step = StepSetPassword
	return nil
}

// SetPassword validates and commits the new password. The password hash, the
// change timestamp and the bypass-token clear are committed as one atomic
// repository operation.
func (f *ResetFlow) SetPassword(ctx context.Context, newPwd, confirm string) error {
	if f.step != StepSetPassword {
		return errors.Wrap(ErrFlowStep, "setting password")
	}
	if newPwd != confirm {
		return core.ErrPasswordMismatch
	}
	if len(newPwd) < 6 {
		return core.ErrPasswordTooWeak
	}

	var usr User
	if err := usr.SetPassword(newPwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err := f.svc.repo.CommitPasswordChange(ctx, f.usr.ID, usr.PasswordHash, nowFunc().UTC()); err != nil {
		return errors.Wrap(err, "committing password change")
	}

	f.Cancel()
	return nil
}

// Cancel returns the flow to StepRequest, discarding all session-local
// secrets.
func (f *ResetFlow) Cancel() {
	f.step = StepRequest
	f.usingBypassToken = false
	f.code = ""
}

func (f *ResetFlow) failedAttempt(ctx context.Context) error {
	count, err := f.svc.limiter.Hit(ctx, f.attemptKey())
	if err != nil {
		f.svc.logger.Warn(fmt.Sprintf("recording failed attempt for user %s: %v", f.usr.ID, err), err)
		return core.ErrInvalidToken
	}
	if count >= f.svc.conf.PasswordResetMaxAttempts {
		f.Cancel()
		return core.ErrTooManyAttempts
	}
	return core.ErrInvalidToken
}

func (f *ResetFlow) attemptKey() string {
	return "pwdreset:" + f.usr.ID
}

// cooldownDaysRemaining reports how many whole days remain before another
// password change is allowed; fractional remaining time rounds up.
func (f *ResetFlow) cooldownDaysRemaining() int {
	if f.usingBypassToken || !f.usr.LastPasswordChangeAt.Valid {
		return 0
	}
	elapsed := nowFunc().Sub(f.usr.LastPasswordChangeAt.Time)
	remaining := f.svc.conf.PasswordChangeCooldown - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
