package middleware

import (
	"net/http"

	"github.com/hitoshi/commentq/internal/model"
)

// submitGuardHeader は投稿リクエストに必須の識別ヘッダー。
// 単純なクロスサイトフォーム送信ではカスタムヘッダーを付与できないため、
// このヘッダーの存在を投稿エンドポイントの送信元確認として使用する。
const submitGuardHeader = "X-XMLHttpRequest"

// NewSubmitGuardMiddleware は識別ヘッダーを持たない投稿リクエストを
// 拒否するミドルウェアを返す。ヘッダーの値は検査しない（存在のみ）。
func NewSubmitGuardMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(submitGuardHeader) == "" {
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "MISSING_SUBMIT_HEADER",
					Message:  "リクエストに " + submitGuardHeader + " ヘッダーがありません。",
					Category: "validation",
					Action:   "記事ページのコメントフォームから送信してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
