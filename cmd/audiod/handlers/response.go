package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/middleware"
	"github.com/lyzr/jukebox/common/models"
)

// errorResponse is the JSON body of every audio API error
type errorResponse struct {
	Error     string `json:"error"`
	ClientUID string `json:"client_uid"`
}

// requestFrom normalizes the inbound request for the resolver
func requestFrom(c echo.Context) models.Request {
	return models.Request{
		ClientUID:  middleware.GetClientUID(c),
		RemoteAddr: c.RealIP(),
		Update:     strings.EqualFold(c.QueryParam("update"), "true"),
		FallbackID: c.QueryParam("fallbackID"),
	}
}

func respondError(c echo.Context, status int, reason string) error {
	uid := middleware.GetClientUID(c)
	c.Response().Header().Set(clients.ClientUIDHeader, uid)
	return c.JSON(status, errorResponse{Error: reason, ClientUID: uid})
}

// respond writes an outcome. Abandoned writes nothing; the caller is gone.
func respond(c echo.Context, outcome models.Outcome) error {
	switch outcome.Kind {
	case models.OutcomeServed:
		a := outcome.Artifact
		defer a.Close()
		if a.Size >= 0 {
			c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(a.Size, 10))
		}
		return c.Stream(http.StatusOK, a.MimeType, a.Body)

	case models.OutcomeRedirect:
		return c.Redirect(http.StatusTemporaryRedirect, outcome.Location)

	case models.OutcomeAbandoned:
		return nil

	default:
		return respondError(c, outcome.StatusCode(), outcome.Reason)
	}
}
