package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core/notification"
	"github.com/kwanza/darasa/core/user"
)

type notificationApi struct {
	svc      notification.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *jwtAuth, opts *Options) {
	api := notificationApi{
		svc:      opts.NotificationSvc,
		userSvc:  opts.UserSvc,
		validate: opts.Validate,
	}

	ng := g.Group("/notifications", jwt)
	ng.POST("/broadcast", api.broadcast, adminMiddleware())
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/:id/read", api.markRead)
}

func (api *notificationApi) broadcast(ctx echo.Context) error {
	var data notification.Broadcast
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Broadcast")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	notifs, err := api.svc.SendBroadcast(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "sending broadcast")
	}
	return ctx.JSON(http.StatusCreated, BroadcastResponse{Recipients: len(notifs)})
}

func (api *notificationApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	notifs, err := api.svc.QueryByUser(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	count, err := api.svc.UnreadCount(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.MarkRead(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		if errors.Cause(err) == notification.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	BroadcastResponse struct {
		Recipients int `json:"recipients"`
	}

	UnreadCountResponse struct {
		Count int `json:"count"`
	}
)
