package medias

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/internal/pipeline"
	"github.com/lukasz26671/webaudioprov/internal/policy"
	"github.com/lukasz26671/webaudioprov/internal/probe"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var controllerLogger = logger.Get("MediasController")

type (
	// InfoDto is the response for the item info endpoint.
	InfoDto struct {
		Id            string           `json:"id"`
		Title         string           `json:"title"`
		Channel       string           `json:"channel"`
		Description   string           `json:"description"`
		DurationSecs  float64          `json:"duration_secs"`
		AgeRestricted bool             `json:"age_restricted"`
		Private       bool             `json:"private"`
		Thumbnails    []item.Thumbnail `json:"thumbnails"`
	}

	Service interface {
		Info(ctx context.Context, reference string) (*item.Metadata, error)
		ResolveRedirect(ctx context.Context, reference string) (string, error)
		MaterializeForServing(ctx context.Context, reference string, kind item.Kind) (*pipeline.Artifact, error)
	}

	// Controller is the struct which is responsible for defining the
	// routes for the media endpoints, and for translating pipeline
	// failures in to the HTTP statuses clients observe.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

// SetRoutes accepts the Echo group for the media endpoints and sets the
// routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/download_id/:id", controller.download)
	eg.GET("/stream_id/:id", controller.stream)
	eg.GET("/info_id/:id", controller.info)
}

// download materializes the requested item in the processed container for
// the requested format and returns it as an attachment.
func (controller *Controller) download(ec echo.Context) error {
	kind, err := kindFromRequest(ec)
	if err != nil {
		return err
	}

	artifact, err := controller.service.MaterializeForServing(ec.Request().Context(), ec.Param("id"), kind)
	if err != nil {
		return mapServiceError(err)
	}

	return ec.Attachment(artifact.Path, artifact.Key)
}

// stream redirects the client to the upstream direct URL for the item's
// audio. Video streaming is not supported.
func (controller *Controller) stream(ec echo.Context) error {
	kind, err := kindFromRequest(ec)
	if err != nil {
		return err
	}

	if kind == item.Video {
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "Streaming is not supported for video")
	}

	url, err := controller.service.ResolveRedirect(ec.Request().Context(), ec.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}

	return ec.Redirect(http.StatusFound, url)
}

// info returns the probed metadata for the item without materializing
// anything.
func (controller *Controller) info(ec echo.Context) error {
	metadata, err := controller.service.Info(ec.Request().Context(), ec.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}

	return ec.JSON(http.StatusOK, NewDto(metadata))
}

func NewDto(metadata *item.Metadata) *InfoDto {
	return &InfoDto{
		Id:            string(metadata.ID),
		Title:         metadata.Title,
		Channel:       metadata.Channel,
		Description:   metadata.Description,
		DurationSecs:  metadata.DurationSecs,
		AgeRestricted: metadata.AgeRestricted,
		Private:       metadata.Private,
		Thumbnails:    metadata.Thumbnails,
	}
}

// kindFromRequest derives the media kind from the 'format' query param,
// defaulting to audio when the param is absent.
func kindFromRequest(ec echo.Context) (item.Kind, error) {
	format := ec.QueryParam("format")
	if format == "" {
		format = "mp3"
	}

	kind, err := item.KindForFormat(format)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Format '"+format+"' is not supported")
	}

	return kind, nil
}

// mapServiceError translates pipeline failures in to HTTP errors. Items
// which cannot be resolved or probed are reported as missing; everything
// else is the client's problem to retry or correct.
func mapServiceError(err error) error {
	var exceeded *policy.DurationExceededError
	switch {
	case errors.Is(err, item.ErrInvalidReference):
		return echo.NewHTTPError(http.StatusNotFound, "Item reference could not be resolved")
	case errors.Is(err, probe.ErrProbeFailed):
		return echo.NewHTTPError(http.StatusNotFound, "Item metadata could not be retrieved")
	case errors.Is(err, pipeline.ErrNoDirectURL):
		return echo.NewHTTPError(http.StatusNotFound, "No direct media URL available for item")
	case errors.As(err, &exceeded):
		return echo.NewHTTPError(http.StatusBadRequest, exceeded.Error())
	default:
		controllerLogger.Emit(logger.ERROR, "Materialization failed: %v\n", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to materialize media for item")
	}
}
