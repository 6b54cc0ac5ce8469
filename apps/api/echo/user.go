package echoapi

import (
	"net/http"
	"sort"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set these roles"
	errNoResetSession    = "no active password reset session"
)

var flowNowFunc = time.Now // mockable

// flowStore keeps at most one in-flight password-reset flow per user. Each
// flow is bound to an opaque session token handed out only to the caller who
// started it; knowing the account email is not enough to drive a flow.
// Sessions are memory-only and expire after ttl; a restart means starting over.
type flowStore struct {
	mutex  sync.Mutex
	ttl    time.Duration
	flows  map[string]*flowSession // session token -> session
	byUser map[string]string       // user ID -> session token
}

type flowSession struct {
	flow      *user.ResetFlow
	userID    string
	createdAt time.Time
}

func newFlowStore(ttl time.Duration) *flowStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &flowStore{
		ttl:    ttl,
		flows:  make(map[string]*flowSession),
		byUser: make(map[string]string),
	}
}

// put registers the flow as the user's single in-flight flow, superseding any
// previous one, and returns its session token.
func (s *flowStore) put(usr user.User, flow *user.ResetFlow) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, ok := s.byUser[usr.ID]; ok {
		delete(s.flows, old)
	}
	token := uuid.NewString()
	s.flows[token] = &flowSession{flow: flow, userID: usr.ID, createdAt: flowNowFunc()}
	s.byUser[usr.ID] = token
	return token
}

func (s *flowStore) get(token string) (*user.ResetFlow, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.flows[token]
	if !ok {
		return nil, false
	}
	if flowNowFunc().Sub(sess.createdAt) > s.ttl { // expired
		s.evict(token, sess.userID)
		return nil, false
	}
	return sess.flow, true
}

func (s *flowStore) delete(token string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if sess, ok := s.flows[token]; ok {
		s.evict(token, sess.userID)
	}
}

// evict must be called with the mutex held.
func (s *flowStore) evict(token, userID string) {
	delete(s.flows, token)
	if s.byUser[userID] == token {
		delete(s.byUser, userID)
	}
}

type userApi struct {
	svc        user.Service
	conf       *core.Config
	auth       *jwtAuth
	validate   *validator.Validate
	translator ut.Translator
	flows      *flowStore
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *jwtAuth, opts *Options) {
	api := userApi{
		svc:        opts.UserSvc,
		conf:       opts.Conf,
		auth:       auth,
		validate:   opts.Validate,
		translator: opts.Translator,
		flows:      newFlowStore(opts.Conf.PasswordResetAttemptWindow),
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-verify", api.verifyPasswordReset)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/register", api.create, adminMiddleware())
	ag.GET("", api.query, adminMiddleware())
	ag.DELETE("", api.destroyMultiple, adminMiddleware())
	ag.GET("/roles", api.queryRoles, adminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/privacy", api.retrievePrivacy)
	dg.PUT("/privacy", api.updatePrivacy)
	dg.POST("/bypass-token", api.issueBypassToken, adminMiddleware())
	dg.DELETE("/bypass-token", api.revokeBypassToken, adminMiddleware())
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}

	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	successMsg := "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with a verification code."

	usr, err := api.svc.GetByEmail(ctx.Request().Context(), data.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			// do not leak account existence: same response shape, throwaway session
			return ctx.JSON(http.StatusOK, SuccessResponse{Success: successMsg, SessionToken: uuid.NewString()})
		}
		return errors.Wrap(err, "finding user by email")
	}

	flow := api.svc.NewResetFlow(usr)
	devCode, err := flow.RequestCode(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "requesting verification code")
	}
	// the new flow supersedes any in-flight one for this user
	sessToken := api.flows.put(usr, flow)

	resp := SuccessResponse{Success: successMsg, SessionToken: sessToken}
	if devCode != "" && api.conf.Debug {
		resp.DevCode = devCode
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) verifyPasswordReset(ctx echo.Context) error {
	var data PasswordResetVerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetVerifyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sessToken := data.SessionToken
	if data.Bypass {
		// a bypass flow needs no prior code request; its session only exists
		// once the admin token has been proven
		usr, err := api.svc.GetByEmail(ctx.Request().Context(), data.Email)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.ErrInvalidToken
			}
			return errors.Wrap(err, "finding user by email")
		}
		flow := api.svc.NewResetFlow(usr)
		if err := flow.UseBypassToken(); err != nil {
			return errors.Wrap(err, "switching to bypass token")
		}
		if err := flow.Verify(ctx.Request().Context(), data.Token); err != nil {
			return errors.Wrap(err, "verifying token")
		}
		sessToken = api.flows.put(usr, flow)
	} else {
		flow, ok := api.flows.get(sessToken)
		if !ok {
			return core.NewValidationError(errors.New(errNoResetSession))
		}
		if err := flow.Verify(ctx.Request().Context(), data.Token); err != nil {
			if errors.Cause(err) == core.ErrTooManyAttempts {
				api.flows.delete(sessToken)
			}
			return errors.Wrap(err, "verifying token")
		}
	}

	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success:      "Token verified; you may now set a new password.",
		SessionToken: sessToken,
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data PasswordResetConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetConfirmRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	flow, ok := api.flows.get(data.SessionToken)
	if !ok {
		return core.NewValidationError(errors.New(errNoResetSession))
	}

	if err := flow.SetPassword(ctx.Request().Context(), data.NewPassword, data.PasswordConfirm); err != nil {
		return errors.Wrap(err, "setting password")
	}
	api.flows.delete(data.SessionToken)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()

	users, err := api.svc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		// `IsActive` and `Roles` can only be changed by admin
		// `Username` and `Email` can only be changed by admin for now
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(usr, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}

	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) retrievePrivacy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	settings := usr.Privacy
	settings.Normalize()
	return ctx.JSON(http.StatusOK, settings)
}

func (api *userApi) updatePrivacy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.PrivacySettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PrivacySettings")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	settings, err := api.svc.UpdatePrivacy(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating privacy settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *userApi) issueBypassToken(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	token, err := api.svc.IssueBypassToken(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "issuing bypass token")
	}
	return ctx.JSON(http.StatusCreated, BypassTokenResponse{Token: token})
}

func (api *userApi) revokeBypassToken(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.RevokeBypassToken(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "revoking bypass token")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxUsr.ID); i < len(query.IDs) {
		if match := query.IDs[i]; ctxUsr.ID == match {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	// PasswordResetVerifyRequest carries the session token issued by the
	// reset request, except for bypass flows which start their own session
	// and identify the account by email instead.
	PasswordResetVerifyRequest struct {
		SessionToken string `json:"session_token"`
		Email        string `json:"email" validate:"omitempty,email"`
		Token        string `json:"token" validate:"required"`
		Bypass       bool   `json:"bypass"`
	}

	PasswordResetConfirmRequest struct {
		SessionToken    string `json:"session_token" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required"`
		PasswordConfirm string `json:"password_confirm" validate:"required"`
	}

	SuccessResponse struct {
		Success      string `json:"success"`
		SessionToken string `json:"session_token,omitempty"`
		DevCode      string `json:"dev_code,omitempty"`
	}

	BypassTokenResponse struct {
		Token string `json:"token"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (pr *PasswordResetVerifyRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	if err := validate.Struct(pr); err != nil {
		return err
	}
	if pr.Bypass && pr.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
	}
	if !pr.Bypass && pr.SessionToken == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "session_token", Error: "this field is required"})
	}
	return nil
}

func (pr *PasswordResetConfirmRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(pr)
}
