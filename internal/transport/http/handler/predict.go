package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"imgclass/internal/app"
	"imgclass/internal/transport/http/middleware"
	"imgclass/internal/transport/http/response"
	"imgclass/internal/vision"
)

const (
	uploadField = "file"

	// multipartOverhead covers the boundaries and part headers that surround
	// the file inside the request body.
	multipartOverhead = 64 << 10
)

type Predictor interface {
	Predict(ctx context.Context, upload app.Upload) (vision.Prediction, error)
}

// PredictHandler serves POST /predict.
type PredictHandler struct {
	predictor      Predictor
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewPredictHandler(predictor Predictor, maxUploadBytes int64, logger *slog.Logger) *PredictHandler {
	return &PredictHandler{
		predictor:      predictor,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Predict accepts a multipart form with an image under "file" and returns the
// predicted label with [negative, positive] probabilities.
func (h *PredictHandler) Predict(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		bodyLimit := h.maxUploadBytes + multipartOverhead
		if c.Request.ContentLength > bodyLimit {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
	}

	file, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge(c)
			return
		}
		response.MissingField(c, uploadField)
		return
	}

	upload := app.Upload{
		RequestID:   middleware.GetRequestID(c),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
	}
	if err := upload.Validate(h.maxUploadBytes); err != nil {
		switch {
		case errors.Is(err, app.ErrUnsupportedMediaType):
			response.Error(c, http.StatusBadRequest, "Only image files (e.g., JPEG, PNG) are allowed for prediction.")
		case errors.Is(err, app.ErrUploadTooLarge):
			tooLarge(c)
		default:
			response.Error(c, http.StatusBadRequest, err.Error())
		}
		return
	}

	f, err := file.Open()
	if err != nil {
		h.logger.Error("open upload failed", "request_id", upload.RequestID, "err", err)
		response.InternalError(c)
		return
	}
	defer f.Close()

	upload.Data, err = io.ReadAll(f)
	if err != nil {
		h.logger.Error("read upload failed", "request_id", upload.RequestID, "err", err)
		response.InternalError(c)
		return
	}

	prediction, err := h.predictor.Predict(c.Request.Context(), upload)
	if err != nil {
		h.logger.Error("prediction failed",
			"request_id", upload.RequestID,
			"filename", upload.Filename,
			"content_type", upload.ContentType,
			"size", len(upload.Data),
			"err", err,
		)
		response.InternalError(c)
		return
	}

	response.OK(c, prediction)
}

func tooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, "Uploaded file is too large.")
}
