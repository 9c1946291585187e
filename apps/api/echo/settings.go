package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core/settings"
)

type settingsApi struct {
	svc settings.Service
}

func registerSettingsAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc settings.Service) {
	api := settingsApi{svc: svc}

	sg := g.Group("/settings", jwt, adminMiddleware())
	sg.GET("", api.retrieve)
	sg.PUT("", api.update)
}

func (api *settingsApi) retrieve(ctx echo.Context) error {
	snap, err := api.svc.Snapshot(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reading settings")
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *settingsApi) update(ctx echo.Context) error {
	var data settings.UpdateSettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}

	snap, err := api.svc.Update(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, snap)
}
