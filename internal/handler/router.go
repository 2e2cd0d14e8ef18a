package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/commentq/internal/metrics"
	"github.com/hitoshi/commentq/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	CommentService  CommentServiceInterface
	MentionVerifier MentionVerifierInterface

	Logger            *slog.Logger
	CORSAllowedOrigin string
	MetricsGatherer   prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS
//
// 投稿エンドポイント（/comment/submit）にのみ識別ヘッダーの
// SubmitGuardを追加で適用する。Webmentionは仕様上任意のクライアントから
// 送信されるためガードの対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	commentHandler := NewCommentHandler(deps.CommentService)
	mentionHandler := NewMentionHandler(deps.CommentService)
	reviewHandler := NewReviewHandler(deps.CommentService, deps.MentionVerifier, deps.Logger)

	// コメント投稿（識別ヘッダー必須）
	r.With(middleware.NewSubmitGuardMiddleware()).Post("/comment/submit", commentHandler.Submit)

	// Webmention受信
	r.Post("/mention/submit", mentionHandler.Submit)

	// モデレーション画面
	r.Route("/comment/review/{token}", func(r chi.Router) {
		r.Get("/", reviewHandler.Show)
		r.Post("/", reviewHandler.Decide)
	})

	// ヘルスチェック
	r.Get("/healthz", healthzHandler)

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	return r
}

// healthzHandler はプロセスの生存確認に応答する。
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
