package handler

import (
	"net/http"
)

// MentionHandler はWebmention受信のHTTPハンドラー。
type MentionHandler struct {
	service CommentServiceInterface
}

// NewMentionHandler はMentionHandlerを生成する。
func NewMentionHandler(service CommentServiceInterface) *MentionHandler {
	return &MentionHandler{service: service}
}

// Submit はWebmentionの受信を処理する。
// POST /mention/submit
//
// Webmention仕様に従い application/x-www-form-urlencoded の
// source と target を受け取る。受理時は202を返し、言及元の内容検証は
// レビュー時まで遅延する（受信時に外部フェッチを行わない）。
func (h *MentionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	_, err := h.service.SubmitMention(r.Context(), r.PostFormValue("source"), r.PostFormValue("target"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
