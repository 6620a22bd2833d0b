package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/service"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

const (
	msgUploadUnsupported = "This server does not support uploaded audio"
	msgNoUpload          = "No file uploads"
	msgConvertFailed     = "Failed to convert audio"
)

// AudioHandler translates audio API requests into resolver calls
type AudioHandler struct {
	resolver *service.Resolver
	log      *logger.Logger
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(c *container.Container) *AudioHandler {
	return &AudioHandler{
		resolver: c.Resolver,
		log:      c.Components.Logger.WithComponent("audio-api"),
	}
}

// Jukebox serves a track's audio, fetching and caching it on first use
// GET /api/audio/jukebox/:id
func (h *AudioHandler) Jukebox(c echo.Context) error {
	outcome := h.resolver.Jukebox(c.Request().Context(), c.Param("id"), requestFrom(c))
	return respond(c, outcome)
}

// Location reports where a track's audio comes from
// GET /api/audio/jukebox/:id/location
func (h *AudioHandler) Location(c echo.Context) error {
	id := c.Param("id")

	loc, ok, err := h.resolver.Location(c.Request().Context(), id, requestFrom(c))
	if err != nil {
		return respondError(c, http.StatusBadRequest, "Track info not found for "+id)
	}

	body := map[string]string{}
	if ok {
		body["url"] = loc
	}
	return c.JSON(http.StatusOK, body)
}

// External serves audio from an arbitrary URL or a previous upload
// GET /api/audio/external?url=&fallbackID=&update=
func (h *AudioHandler) External(c echo.Context) error {
	outcome := h.resolver.External(c.Request().Context(), c.QueryParam("url"), requestFrom(c))
	return respond(c, outcome)
}

// Upload transcodes and stores a client file, answering with its content id
// POST /api/audio/upload (multipart field "file")
func (h *AudioHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	req := requestFrom(c)

	if err := h.resolver.UploadSupported(ctx); err != nil {
		h.log.Warn("upload rejected", "client_uid", req.ClientUID, "error", err)
		return respondError(c, http.StatusBadGateway, msgUploadUnsupported)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return respondError(c, http.StatusBadRequest, msgNoUpload)
	}

	file, err := header.Open()
	if err != nil {
		return respondError(c, http.StatusBadRequest, msgNoUpload)
	}
	defer file.Close()

	id, err := h.resolver.Upload(ctx, file, header.Filename, req)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, map[string]string{"id": id})
	case errors.Is(err, models.ErrStorageUnsupported), errors.Is(err, models.ErrProcessMissing):
		return respondError(c, http.StatusBadGateway, msgUploadUnsupported)
	case errors.Is(err, models.ErrValidation):
		return respondError(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("upload failed", "client_uid", req.ClientUID, "filename", header.Filename, "error", err)
		return respondError(c, http.StatusBadGateway, msgConvertFailed)
	}
}
