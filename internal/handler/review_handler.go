package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/commentq/internal/mention"
	"github.com/hitoshi/commentq/internal/model"
	"github.com/hitoshi/commentq/internal/queue"
)

//go:embed templates/*.tmpl
var reviewTemplates embed.FS

// MentionVerifierInterface はレビュー画面が必要とする言及元検証のインターフェース。
type MentionVerifierInterface interface {
	Verify(ctx context.Context, rec *model.PendingComment) (*mention.Verification, error)
}

// ReviewHandler はモデレーション画面のHTTPハンドラー。
// トークンを知っている者だけが到達できるため、認証は行わない。
type ReviewHandler struct {
	service  CommentServiceInterface
	verifier MentionVerifierInterface
	logger   *slog.Logger
	tmpl     *template.Template
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service CommentServiceInterface, verifier MentionVerifierInterface, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
		tmpl:     template.Must(template.ParseFS(reviewTemplates, "templates/*.tmpl")),
	}
}

// reviewPageData はレビュー画面テンプレートの描画データ。
type reviewPageData struct {
	Record      *model.PendingComment
	BodyHTML    template.HTML // サニタイズ済みのため安全に埋め込める
	IsMention   bool
	Mention     *mention.Verification
	ExcerptHTML template.HTML
	MentionErr  string
}

// resultPageData はモデレーション結果画面テンプレートの描画データ。
type resultPageData struct {
	Approved  bool
	CommentID string
}

// Show はレビュー画面を表示する。
// GET /comment/review/{token}
//
// Webmentionレコードの場合は表示のたびに言及元を再検証する。
// 検証失敗は画面上にエラーとして表示し、却下の判断材料とする。
func (h *ReviewHandler) Show(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !queue.ValidToken(token) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTokenNotFoundError())
		return
	}

	rec, err := h.service.Review(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := reviewPageData{
		Record:    rec,
		BodyHTML:  template.HTML(rec.BodyHTML),
		IsMention: rec.Type == model.RecordTypeMention,
	}

	if data.IsMention {
		ver, verr := h.verifier.Verify(r.Context(), rec)
		if verr != nil {
			data.MentionErr = verr.Error()
		} else {
			data.Mention = ver
			data.ExcerptHTML = template.HTML(ver.ExcerptHTML)
		}
	}

	h.renderPage(w, "review.tmpl", data)
}

// Decide はオーナーの決定を適用する。
// POST /comment/review/{token}
//
// フォームフィールドは action（approve/reject）、reply（任意の返信本文）、
// notify（返信を投稿者へメール通知するか）。
func (h *ReviewHandler) Decide(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !queue.ValidToken(token) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTokenNotFoundError())
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	action := r.PostFormValue("action")
	if action != "approve" && action != "reject" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_ACTION",
			Message:  "actionはapproveまたはrejectを指定してください。",
			Category: "validation",
			Action:   "レビュー画面のボタンから操作してください。",
		})
		return
	}

	result, err := h.service.Moderate(r.Context(), token, model.Decision{
		Approve:      action == "approve",
		ReplyBody:    r.PostFormValue("reply"),
		NotifyAuthor: r.PostFormValue("notify") != "",
	})
	if err != nil {
		// コミット失敗時もレコードは削除済みのため、結果画面ではなく
		// エラーレスポンスでオーナーに手動回復を促す
		handleServiceError(w, err)
		return
	}

	h.renderPage(w, "result.tmpl", resultPageData{
		Approved:  result.Approved,
		CommentID: result.CommentID,
	})
}

// renderPage はテンプレートをバッファなしで描画する。描画エラーはログのみ。
func (h *ReviewHandler) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("failed to render review page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}
