package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core/attendance"
	"github.com/kwanza/darasa/core/user"
)

type attendanceApi struct {
	svc      attendance.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *jwtAuth, opts *Options) {
	api := attendanceApi{
		svc:      opts.AttendanceSvc,
		userSvc:  opts.UserSvc,
		validate: opts.Validate,
	}

	ag := g.Group("/attendance", jwt)
	ag.POST("/bulk-mark", api.bulkMark, staffMiddleware())
	ag.GET("", api.queryByDate, staffMiddleware())
	ag.GET("/users/:id", api.queryByUser)
}

func (api *attendanceApi) bulkMark(ctx echo.Context) error {
	var data attendance.BulkMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	records, err := api.svc.BulkMark(ctx.Request().Context(), data.Date, ctxUsr.ID, data.Marks)
	if err != nil {
		return errors.Wrap(err, "bulk marking attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) queryByDate(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	if err := api.validate.Var(date, "required,dateday"); err != nil {
		return err
	}

	records, err := api.svc.QueryByDate(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "querying attendance by date")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// queryByUser lets a user read their own records; staff can read anyone's.
func (api *attendanceApi) queryByUser(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id := ctx.Param("id")
	if id != ctxUsr.ID && !(ctxUsr.IsAdmin() || ctxUsr.IsTeacher()) {
		return errHttpForbidden
	}

	records, err := api.svc.QueryByUser(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying attendance by user")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}
