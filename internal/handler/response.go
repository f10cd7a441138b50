package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/scriptgo/internal/middleware"
	"github.com/hitoshi/scriptgo/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "Failed to parse request body.",
			Category: "validation",
			Action:   "Send a valid JSON body.",
		})
		return false
	}
	return true
}

func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTopicRequired, model.ErrCodeInvalidRequest, model.ErrCodeConfirmationRequired:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeScriptNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeProviderRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeNotConfigured, model.ErrCodeEmailNotConfigured, model.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeProviderAuth, model.ErrCodeGenerationFailed,
		model.ErrCodeGenerationEmpty, model.ErrCodeGenerationMalformed, model.ErrCodeEmailFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
