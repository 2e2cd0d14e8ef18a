// Package handler はHTTPエンドポイントのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/commentq/internal/comment"
	"github.com/hitoshi/commentq/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// Submit はコメント投稿を検証してキューに登録する。
	Submit(ctx context.Context, in comment.SubmitInput) (string, error)
	// SubmitMention はWebmentionを検証してキューに登録する。
	SubmitMention(ctx context.Context, source, target string) (string, error)
	// Review はレビュー対象のレコードを取得する。
	Review(ctx context.Context, token string) (*model.PendingComment, error)
	// Moderate はオーナーの決定を適用する。
	Moderate(ctx context.Context, token string, decision model.Decision) (*comment.ModerationResult, error)
}

// CommentHandler はコメント投稿のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// submitResponse はコメント受付のAPIレスポンス。
type submitResponse struct {
	Status string `json:"status"`
}

// Submit はコメント投稿を処理する。
// POST /comment/submit
//
// 記事ページのフォームからXHRで送信される。フォームフィールドは
// uri, name, email, website, comment。受理したコメントはキューに
// 登録されるだけで、トークンはレスポンスに含めない（オーナーへの
// 通知メールのみがモデレーションリンクを知る）。
func (h *CommentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "記事ページのコメントフォームから送信してください。",
		})
		return
	}

	_, err := h.service.Submit(r.Context(), comment.SubmitInput{
		URI:         r.PostFormValue("uri"),
		AuthorName:  r.PostFormValue("name"),
		AuthorEmail: r.PostFormValue("email"),
		AuthorWeb:   r.PostFormValue("website"),
		Body:        r.PostFormValue("comment"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{Status: "queued"})
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingField,
		model.ErrCodeInvalidEmail,
		model.ErrCodeInvalidWebsite,
		model.ErrCodeInvalidURI,
		model.ErrCodeInvalidMention:
		return http.StatusBadRequest
	case model.ErrCodePostNotFound, model.ErrCodeTokenNotFound:
		return http.StatusNotFound
	case model.ErrCodeMalformedPage:
		return http.StatusUnprocessableEntity
	case model.ErrCodeStorageFailed:
		return http.StatusInternalServerError
	case model.ErrCodePublishFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
