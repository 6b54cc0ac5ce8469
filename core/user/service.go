package user

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kwanza/darasa/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		// ActiveUserIDs returns the IDs of all active users; used as the
		// broadcast recipient set.
		ActiveUserIDs(ctx context.Context) ([]string, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		UpdatePrivacy(ctx context.Context, id string, settings PrivacySettings) error
		SetLastLogin(ctx context.Context, id string, t time.Time) (User, error)
		SetBypassToken(ctx context.Context, id string, token null.String) error
		// CommitPasswordChange atomically sets the password hash, stamps the
		// change time and clears any outstanding bypass token.
		CommitPasswordChange(ctx context.Context, id string, hash []byte, changedAt time.Time) error
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Filter(ctx context.Context, filter QueryFilter) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		UpdatePrivacy(ctx context.Context, id string, settings PrivacySettings) (PrivacySettings, error)
		IssueBypassToken(ctx context.Context, id string) (string, error)
		RevokeBypassToken(ctx context.Context, id string) error
		NewResetFlow(usr User) *ResetFlow
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		mirror  core.Cache // advisory only; failures are logged and swallowed
		limiter core.AttemptLimiter
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	mailSvc core.EmailService,
	mirror core.Cache,
	limiter core.AttemptLimiter,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		mirror:  mirror,
		limiter: limiter,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		StudentID: nu.StudentID,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.Privacy.Normalize()
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.mailSvc.SendMessages(svc.welcomeMail(usr))
	return usr, nil
}

func (svc *service) welcomeMail(usr User) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Welcome to %s", svc.conf.AppName),
		TemplateName: "welcome",
		TemplateData: struct {
			Name     string
			Username string
		}{usr.Name, usr.Username},
	}
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		Roles:     uu.Roles,
		UpdatedAt: nowFunc().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.repo.SetLastLogin(ctx, usr.ID, nowFunc().UTC())
}

// UpdatePrivacy writes the settings through to the primary store, then
// mirrors them to the advisory cache. The mirror write is best-effort and
// non-blocking: primary-store success is the sole success criterion.
func (svc *service) UpdatePrivacy(ctx context.Context, id string, settings PrivacySettings) (PrivacySettings, error) {
	settings.Normalize()
	if err := svc.repo.UpdatePrivacy(ctx, id, settings); err != nil {
		return PrivacySettings{}, errors.Wrap(err, "updating privacy settings")
	}
	go svc.mirrorPrivacy(id, settings)
	return settings, nil
}

func (svc *service) mirrorPrivacy(id string, settings PrivacySettings) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := json.Marshal(settings)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("encoding privacy settings for user %s: %v", id, err), err)
		return
	}
	if err := svc.mirror.Set(ctx, "privacy:"+id, string(val), 0); err != nil {
		svc.logger.Warn(fmt.Sprintf("mirroring privacy settings for user %s: %v", id, err), err)
	}
}

// IssueBypassToken issues a new administrative password-reset token for the
// given user. At most one token is outstanding per user: issuing again
// replaces the previous one.
func (svc *service) IssueBypassToken(ctx context.Context, id string) (string, error) {
	if _, err := svc.repo.GetUserByID(ctx, id); err != nil {
		return "", err
	}
	token, err := randomToken()
	if err != nil {
		return "", errors.Wrap(err, "generating bypass token")
	}
	if err := svc.repo.SetBypassToken(ctx, id, null.StringFrom(token)); err != nil {
		return "", errors.Wrap(err, "storing bypass token")
	}
	return token, nil
}

func (svc *service) RevokeBypassToken(ctx context.Context, id string) error {
	return svc.repo.SetBypassToken(ctx, id, null.String{})
}

func (svc *service) sendResetCodeMail(usr User, code string) error {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Password reset verification code",
		BodyStr: fmt.Sprintf(
			"Hi %s,\r\n\r\nYour %s password reset code is: %s\r\n\r\n"+
				"If you did not request a password reset, you can safely ignore this email.",
			usr.Name, svc.conf.AppName, code,
		),
	}
	return svc.mailSvc.Send(msg)
}

func randomToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
