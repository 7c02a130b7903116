package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsroom/internal/middleware"
	"github.com/hitoshi/newsroom/internal/model"
	"github.com/hitoshi/newsroom/internal/points"
	"github.com/hitoshi/newsroom/internal/repository"
)

// writeJSON はレスポンスボディをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時はINVALID_PAYLOADを返す。
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return model.NewInvalidPayloadError("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidPayloadError(err.Error())
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForCode(apiErr.Code), apiErr)
		return
	}

	var convErr *points.ConversionError
	if errors.As(err, &convErr) {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity,
			model.NewConversionRejectedError(string(convErr.Reason), convErr.Detail))
		return
	}

	if errors.Is(err, repository.ErrVersionConflict) {
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewConcurrentUpdateError())
		return
	}

	logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
