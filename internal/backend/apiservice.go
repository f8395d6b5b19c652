package backend

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jo-hoe/carddraw/internal/backend/database"
	"github.com/jo-hoe/carddraw/internal/core"
	"github.com/jo-hoe/carddraw/internal/metrics"

	"github.com/labstack/echo/v4"
)

const mimePNG = "image/png"

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
	metrics     *metrics.Metrics
}

type UploadedImage struct {
	Name string `json:"name" validate:"required"`
	Data string `json:"data" validate:"required,imagedata"`
}

type UploadRequest struct {
	Images []UploadedImage `json:"images" validate:"required,dive"`
}

type DrawRequest struct {
	GroupID *int `json:"groupId"`
}

type SessionRequest struct {
	TotalGroups *int `json:"totalGroups"`
	ActiveGroup *int `json:"activeGroup"`
}

type DeleteResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService, m *metrics.Metrics) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
		metrics:     m,
	}
}

func (service *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", service.probeHandler)
	e.GET("/metrics", echo.WrapHandler(service.metrics.Handler()))

	api := e.Group("/api")
	api.GET("/images", service.listImagesHandler)
	api.POST("/images", service.uploadImagesHandler)
	api.POST("/images/reset", service.resetHandler)
	api.GET("/images/:id", service.getImageHandler)
	api.GET("/images/:id/thumbnail", service.thumbnailHandler)
	api.PATCH("/images/:id/select", service.selectImageHandler)
	api.DELETE("/images/:id", service.deleteImageHandler)

	api.POST("/draw", service.drawHandler)
	api.GET("/status", service.statusHandler)
	api.GET("/session", service.getSessionHandler)
	api.PUT("/session", service.updateSessionHandler)
}

func (service *APIService) probeHandler(ctx echo.Context) error {
	if err := service.coreService.Ping(ctx.Request().Context()); err != nil {
		slog.Error("probeHandler: store is not reachable",
			"status", http.StatusServiceUnavailable, "error", err)
		return ctx.String(http.StatusServiceUnavailable, "store is not reachable")
	}
	return ctx.String(http.StatusOK, "API Service is running")
}

func (service *APIService) listImagesHandler(ctx echo.Context) error {
	images, err := service.coreService.GetImages(ctx.Request().Context())
	if err != nil {
		slog.Error("listImagesHandler: failed to list images",
			"status", http.StatusInternalServerError, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to retrieve images")
	}
	return ctx.JSON(http.StatusOK, images)
}

func (service *APIService) getImageHandler(ctx echo.Context) error {
	id, err := imageID(ctx)
	if err != nil {
		return err
	}

	image, err := service.coreService.GetImage(ctx.Request().Context(), id)
	if errors.Is(err, database.ErrImageNotFound) {
		return jsonError(ctx, http.StatusNotFound, "Image not found")
	}
	if err != nil {
		slog.Error("getImageHandler: failed to get image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to retrieve images")
	}
	return ctx.JSON(http.StatusOK, image)
}

func (service *APIService) uploadImagesHandler(ctx echo.Context) error {
	var request UploadRequest
	if err := ctx.Bind(&request); err != nil {
		slog.Warn("uploadImagesHandler: malformed request body",
			"status", http.StatusBadRequest, "error", err)
		return jsonError(ctx, http.StatusBadRequest, "Invalid request body")
	}
	if err := ctx.Validate(&request); err != nil {
		slog.Warn("uploadImagesHandler: invalid request body",
			"status", http.StatusBadRequest, "error", err)
		return err
	}

	uploads := make([]core.UploadImage, 0, len(request.Images))
	for _, img := range request.Images {
		uploads = append(uploads, core.UploadImage{Name: img.Name, Data: img.Data})
	}

	created, err := service.coreService.AddImages(ctx.Request().Context(), uploads)
	if err != nil {
		slog.Error("uploadImagesHandler: failed to store images",
			"status", http.StatusInternalServerError, "count", len(uploads), "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to upload images")
	}
	return ctx.JSON(http.StatusCreated, created)
}

func (service *APIService) selectImageHandler(ctx echo.Context) error {
	id, err := imageID(ctx)
	if err != nil {
		return err
	}
	groupID := 0
	if raw := ctx.QueryParam("groupId"); raw != "" {
		groupID, err = strconv.Atoi(raw)
		if err != nil || groupID < 0 {
			slog.Warn("selectImageHandler: invalid group id",
				"status", http.StatusBadRequest, "group_id", raw)
			return jsonError(ctx, http.StatusBadRequest, "Invalid group id")
		}
	}

	image, err := service.coreService.SelectImage(ctx.Request().Context(), id, groupID)
	if errors.Is(err, database.ErrImageNotFound) {
		return jsonError(ctx, http.StatusNotFound, "Image not found")
	}
	if err != nil {
		slog.Error("selectImageHandler: failed to select image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to select image")
	}
	return ctx.JSON(http.StatusOK, image)
}

func (service *APIService) resetHandler(ctx echo.Context) error {
	images, err := service.coreService.Reset(ctx.Request().Context())
	if err != nil {
		slog.Error("resetHandler: failed to reset images",
			"status", http.StatusInternalServerError, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to reset images")
	}
	return ctx.JSON(http.StatusOK, images)
}

func (service *APIService) deleteImageHandler(ctx echo.Context) error {
	id, err := imageID(ctx)
	if err != nil {
		return err
	}

	err = service.coreService.DeleteImage(ctx.Request().Context(), id)
	if errors.Is(err, database.ErrImageNotFound) {
		return jsonError(ctx, http.StatusNotFound, "Image not found")
	}
	if err != nil {
		slog.Error("deleteImageHandler: failed to delete image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to delete image")
	}
	return ctx.JSON(http.StatusOK, DeleteResponse{Message: "Image deleted", ID: id})
}

func (service *APIService) drawHandler(ctx echo.Context) error {
	var request DrawRequest
	if err := ctx.Bind(&request); err != nil {
		slog.Warn("drawHandler: malformed request body",
			"status", http.StatusBadRequest, "error", err)
		return jsonError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	result, err := service.coreService.Draw(ctx.Request().Context(), request.GroupID)
	switch {
	case errors.Is(err, core.ErrInvalidGroup):
		slog.Warn("drawHandler: invalid group",
			"status", http.StatusBadRequest, "error", err)
		return jsonError(ctx, http.StatusBadRequest, "Invalid group id")
	case errors.Is(err, core.ErrDrawConflict):
		slog.Warn("drawHandler: draw conflicted with another selection",
			"status", http.StatusConflict, "error", err)
		return jsonError(ctx, http.StatusConflict, "Image was drawn concurrently, try again")
	case err != nil:
		slog.Error("drawHandler: failed to draw image",
			"status", http.StatusInternalServerError, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to draw image")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (service *APIService) statusHandler(ctx echo.Context) error {
	status, err := service.coreService.Status(ctx.Request().Context())
	if err != nil {
		slog.Error("statusHandler: failed to compute status",
			"status", http.StatusInternalServerError, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to retrieve images")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (service *APIService) getSessionHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, service.coreService.GetSession())
}

func (service *APIService) updateSessionHandler(ctx echo.Context) error {
	var request SessionRequest
	if err := ctx.Bind(&request); err != nil {
		slog.Warn("updateSessionHandler: malformed request body",
			"status", http.StatusBadRequest, "error", err)
		return jsonError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	totalGroups := service.coreService.GetSession().TotalGroups
	if request.TotalGroups != nil {
		totalGroups = *request.TotalGroups
	}

	session, err := service.coreService.UpdateSession(totalGroups, request.ActiveGroup)
	if errors.Is(err, core.ErrInvalidGroup) {
		slog.Warn("updateSessionHandler: invalid group",
			"status", http.StatusBadRequest, "error", err)
		return jsonError(ctx, http.StatusBadRequest, "Invalid group id")
	}
	if err != nil {
		slog.Error("updateSessionHandler: failed to update session",
			"status", http.StatusInternalServerError, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to update session")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (service *APIService) thumbnailHandler(ctx echo.Context) error {
	id, err := imageID(ctx)
	if err != nil {
		return err
	}
	width := service.config.ThumbnailWidth
	if raw := ctx.QueryParam("width"); raw != "" {
		width, err = strconv.Atoi(raw)
		if err != nil || width < 1 {
			slog.Warn("thumbnailHandler: invalid width",
				"status", http.StatusBadRequest, "width", raw)
			return jsonError(ctx, http.StatusBadRequest, "Invalid width")
		}
	}

	thumbnail, err := service.coreService.Thumbnail(ctx.Request().Context(), id, width)
	switch {
	case errors.Is(err, database.ErrImageNotFound):
		return jsonError(ctx, http.StatusNotFound, "Image not found")
	case errors.Is(err, core.ErrUndecodable):
		slog.Warn("thumbnailHandler: image cannot be rendered",
			"status", http.StatusUnprocessableEntity, "image_id", id, "error", err)
		return jsonError(ctx, http.StatusUnprocessableEntity, "Image cannot be rendered")
	case err != nil:
		slog.Error("thumbnailHandler: failed to render thumbnail",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return jsonError(ctx, http.StatusInternalServerError, "Failed to retrieve images")
	}

	ctx.Response().Header().Set("Cache-Control", "no-store, max-age=0")
	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

// imageID parses the :id path parameter. Anything but a positive integer is a
// 400, rendered by echo's error handler as {"message": ...}.
func imageID(ctx echo.Context) (int64, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		slog.Warn("invalid image id", "status", http.StatusBadRequest, "image_id", raw)
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid image id")
	}
	return id, nil
}

func jsonError(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, errorResponse{Message: message})
}
