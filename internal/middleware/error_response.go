package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/commentq/internal/model"
)

// errorResponseBody はエラーレスポンスのJSON形式。
type errorResponseBody struct {
	Error *model.APIError `json:"error"`
}

// WriteErrorResponse はAPIErrorを統一形式のJSONレスポンスとして書き出す。
func WriteErrorResponse(w http.ResponseWriter, status int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponseBody{Error: apiErr}); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き出す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "サーバー内部でエラーが発生しました。",
		Category: "internal",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
