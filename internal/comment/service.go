// Package comment はコメントのモデレーションワークフローを提供する。
//
// 状態遷移は Submitted → Pending → {Published, Discarded}。
// Pendingが唯一の安定状態であり、PublishedとDiscardedはいずれも
// キューストアからの削除を伴う終端状態になる。
package comment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/commentq/internal/mention"
	"github.com/hitoshi/commentq/internal/model"
	"github.com/hitoshi/commentq/internal/post"
	"github.com/hitoshi/commentq/internal/publish"
	"github.com/hitoshi/commentq/internal/queue"
)

// PostResolver は記事解決のインターフェース。
// post.Resolverを抽象化してテスタビリティを向上させる。
type PostResolver interface {
	Resolve(uri string) (*post.Article, error)
}

// Formatter はコメント整形のインターフェース。
type Formatter interface {
	FormatComment(raw string) string
}

// MentionVerifier は言及元ページ検証のインターフェース。
// mentionレコードの承認時に呼ばれ、検証結果が公開内容になる。
type MentionVerifier interface {
	Verify(ctx context.Context, rec *model.PendingComment) (*mention.Verification, error)
}

// Notifier はメール通知のインターフェース。
// 通知はベストエフォートであり、失敗してもワークフローは進行する。
type Notifier interface {
	NotifyNewComment(rec *model.PendingComment, reviewURL string) error
	NotifyReply(rec *model.PendingComment, replyHTML string, approved bool) error
}

// MetricsRecorder はワークフローのメトリクス収集のインターフェース。
type MetricsRecorder interface {
	RecordSubmission(recordType string)
	RecordModeration(outcome string)
	RecordPublishFailure()
	RecordNotifyFailure()
	RecordPublishLatency(d time.Duration)
}

// Service はモデレーションワークフローを統括する。
type Service struct {
	resolver  PostResolver
	formatter Formatter
	store     queue.Store
	publisher publish.Publisher
	notifier  Notifier
	verifier  MentionVerifier
	metrics   MetricsRecorder
	logger    *slog.Logger
	baseURL   string
}

// NewService はServiceを生成する。
func NewService(
	resolver PostResolver,
	formatter Formatter,
	store queue.Store,
	publisher publish.Publisher,
	notifier Notifier,
	verifier MentionVerifier,
	metrics MetricsRecorder,
	logger *slog.Logger,
	baseURL string,
) *Service {
	return &Service{
		resolver:  resolver,
		formatter: formatter,
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		verifier:  verifier,
		metrics:   metrics,
		logger:    logger,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// SubmitInput はコメント投稿の入力を表す。
type SubmitInput struct {
	URI         string
	AuthorName  string
	AuthorEmail string // 任意。返信通知を希望する場合のみ
	AuthorWeb   string // 任意
	Body        string // 生のMarkdownテキスト
}

// ModerationResult はモデレーションの結果を表す。
type ModerationResult struct {
	Approved  bool
	CommentID string // 承認かつコミット成功時のみ設定される
}

var (
	// whitespacePattern は空白文字の検出用。
	whitespacePattern = regexp.MustCompile(`\s`)
	// websitePattern は投稿者WebサイトURLの形式。
	websitePattern = regexp.MustCompile(`^https?://\S+$`)
)

// Submit はコメント投稿を処理する。
// 検証 → 記事解決 → サニタイズ → キュー登録 → オーナー通知の順に進み、
// トークンは永続化成功後にのみ確定する。通知の失敗は登録を巻き戻さない
// （レコードはトークンを知っていればモデレーション可能なまま残る）。
// 検証・解決エラー時は副作用を一切残さない。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if err := validateSubmitInput(in); err != nil {
		return "", err
	}

	article, err := s.resolver.Resolve(in.URI)
	if err != nil {
		return "", mapResolveError(in.URI, err)
	}

	rec := &model.PendingComment{
		Type:        model.RecordTypeComment,
		PostPath:    article.RepoPath,
		PostURI:     in.URI,
		PostTitle:   article.Title,
		AuthorName:  strings.TrimSpace(in.AuthorName),
		AuthorEmail: strings.TrimSpace(in.AuthorEmail),
		AuthorWeb:   strings.TrimSpace(in.AuthorWeb),
		BodyHTML:    s.formatter.FormatComment(in.Body),
		CreatedAt:   time.Now().UTC(),
	}

	token, err := s.store.Create(ctx, rec)
	if err != nil {
		s.logger.Error("failed to enqueue comment",
			slog.String("post_uri", in.URI),
			slog.String("error", err.Error()),
		)
		return "", model.NewStorageError(err.Error())
	}

	s.metrics.RecordSubmission(string(model.RecordTypeComment))
	s.notifyOwner(rec, token)

	return token, nil
}

// SubmitMention はWebmentionの受信を処理する。
// sourceは言及元URL、targetは言及先URL。targetのパスが記事URIとして
// 解決できる場合のみ受理する。言及元の内容検証はレビュー時に行う。
func (s *Service) SubmitMention(ctx context.Context, source, target string) (string, error) {
	srcURL, err := url.Parse(strings.TrimSpace(source))
	if err != nil || (srcURL.Scheme != "http" && srcURL.Scheme != "https") {
		return "", model.NewInvalidMentionError("source のURLを解析できません。")
	}

	tgtURL, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", model.NewInvalidMentionError("target のURLを解析できません。")
	}
	uri := tgtURL.Path
	if uri == "" || !strings.HasPrefix(uri, "/") || whitespacePattern.MatchString(uri) {
		return "", model.NewInvalidURIError()
	}

	article, err := s.resolver.Resolve(uri)
	if err != nil {
		return "", mapResolveError(uri, err)
	}

	rec := &model.PendingComment{
		Type:      model.RecordTypeMention,
		PostPath:  article.RepoPath,
		PostURI:   uri,
		PostTitle: article.Title,
		SourceURL: srcURL.String(),
		CreatedAt: time.Now().UTC(),
	}

	token, err := s.store.Create(ctx, rec)
	if err != nil {
		s.logger.Error("failed to enqueue mention",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return "", model.NewStorageError(err.Error())
	}

	s.metrics.RecordSubmission(string(model.RecordTypeMention))
	s.notifyOwner(rec, token)

	return token, nil
}

// Review はレビュー画面表示用にレコードを取得する。
// 未知のトークンとモデレーション済みトークンは同一の「not found」として返る。
func (s *Service) Review(ctx context.Context, token string) (*model.PendingComment, error) {
	rec, err := s.store.Load(ctx, token)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil, model.NewTokenNotFoundError()
		}
		return nil, model.NewStorageError(err.Error())
	}
	return rec, nil
}

// Moderate はオーナーの決定を適用する。
// 承認時はPublisherを呼び出し、その成否に関わらずレコードを削除する
// （キューはステージングバッファでありアウトボックスではない。コミット
// 失敗時の回復手段はログからの手動再投稿で、自動リトライは行わない）。
// 削除はメールアドレスの消去を兼ねるため、個人情報の消去がコミットの
// 耐久性より優先される。
//
// mentionレコードの承認は言及元の再検証を伴い、公開内容（本文・著者・
// URL・タイトル）は検証結果から組み立てる。検証に失敗した場合は
// Publisherを呼ばずエラーを返し、レコードは残す（オーナーは再試行
// するか却下できる）。
func (s *Service) Moderate(ctx context.Context, token string, decision model.Decision) (*ModerationResult, error) {
	rec, err := s.store.Load(ctx, token)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			// 未知またはモデレーション済み。並行モデレーションの2回目は
			// ここに到達し、副作用なしのno-opになる。
			return nil, model.NewTokenNotFoundError()
		}
		return nil, model.NewStorageError(err.Error())
	}

	var replyHTML string
	if reply := strings.TrimSpace(decision.ReplyBody); reply != "" {
		replyHTML = s.formatter.FormatComment(reply)
	}

	result := &ModerationResult{Approved: decision.Approve}
	var publishErr error

	if decision.Approve {
		payload := &publish.Payload{
			PostPath:   rec.PostPath,
			AuthorName: rec.AuthorName,
			AuthorWeb:  rec.AuthorWeb,
			RecordType: string(rec.Type),
			BodyHTML:   rec.BodyHTML,
			ReplyHTML:  replyHTML,
			CreatedAt:  rec.CreatedAt,
		}

		if rec.Type == model.RecordTypeMention {
			ver, verr := s.verifier.Verify(ctx, rec)
			if verr != nil {
				s.logger.Warn("mention verification failed on approval",
					slog.String("source", rec.SourceURL),
					slog.String("error", verr.Error()),
				)
				return nil, model.NewInvalidMentionError("言及元を検証できませんでした: " + verr.Error())
			}
			payload.AuthorName = ver.AuthorName
			payload.AuthorWeb = ver.Web
			payload.MentionTitle = ver.Title
			payload.BodyHTML = ver.ExcerptHTML
		}

		start := time.Now()
		result.CommentID, publishErr = s.publisher.Publish(ctx, payload)
		s.metrics.RecordPublishLatency(time.Since(start))

		if publishErr != nil {
			s.metrics.RecordPublishFailure()
			// レコードはこの後削除されるため、手動回復用に本文を含めて記録する
			s.logger.Error("publish failed; record will still be deleted",
				slog.String("token", token),
				slog.String("post_path", payload.PostPath),
				slog.String("author_name", payload.AuthorName),
				slog.String("body_html", payload.BodyHTML),
				slog.String("reply_html", replyHTML),
				slog.String("error", publishErr.Error()),
			)
		}
	}

	// 決定の内容とコミットの成否に関わらず削除する。
	// 削除と同時にAuthorEmailはストレージから復元不能になる。
	if err := s.store.Delete(ctx, token); err != nil {
		s.logger.Error("failed to delete queue record",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError(err.Error())
	}

	if decision.Approve {
		s.metrics.RecordModeration("approved")
	} else {
		s.metrics.RecordModeration("rejected")
	}

	// 返信通知はベストエフォート。送信対象のメールアドレスは
	// 削除済みレコードのメモリ上のコピーからのみ参照される。
	if replyHTML != "" && decision.NotifyAuthor && rec.AuthorEmail != "" {
		if err := s.notifier.NotifyReply(rec, replyHTML, decision.Approve); err != nil {
			s.metrics.RecordNotifyFailure()
			s.logger.Warn("failed to send reply notification",
				slog.String("post_uri", rec.PostURI),
				slog.String("error", err.Error()),
			)
		}
	}

	if publishErr != nil {
		return result, model.NewPublishFailedError(publishErr.Error())
	}
	return result, nil
}

// ReviewURL はトークンからモデレーションリンクを組み立てる。
func (s *Service) ReviewURL(token string) string {
	return s.baseURL + "/comment/review/" + token
}

// notifyOwner はオーナーへのモデレーション依頼通知を送信する。失敗は非致命。
func (s *Service) notifyOwner(rec *model.PendingComment, token string) {
	if err := s.notifier.NotifyNewComment(rec, s.ReviewURL(token)); err != nil {
		s.metrics.RecordNotifyFailure()
		s.logger.Warn("failed to send moderation notification",
			slog.String("post_uri", rec.PostURI),
			slog.String("error", err.Error()),
		)
	}
}

// validateSubmitInput はコメント投稿の構造的検証を行う。
func validateSubmitInput(in SubmitInput) error {
	if strings.TrimSpace(in.AuthorName) == "" {
		return model.NewMissingFieldError("名前")
	}

	if email := strings.TrimSpace(in.AuthorEmail); email != "" {
		if !strings.Contains(email, "@") || whitespacePattern.MatchString(email) {
			return model.NewInvalidEmailError()
		}
	}

	if web := strings.TrimSpace(in.AuthorWeb); web != "" {
		if !websitePattern.MatchString(web) {
			return model.NewInvalidWebsiteError()
		}
	}

	if strings.TrimSpace(in.Body) == "" {
		return model.NewMissingFieldError("コメント本文")
	}

	if in.URI == "" || !strings.HasPrefix(in.URI, "/") || whitespacePattern.MatchString(in.URI) {
		return model.NewInvalidURIError()
	}

	return nil
}

// mapResolveError はPost Resolverのエラーを統一エラーへ変換する。
func mapResolveError(uri string, err error) error {
	switch {
	case errors.Is(err, post.ErrNotFound):
		return model.NewPostNotFoundError(uri)
	case errors.Is(err, post.ErrMalformedPage):
		return model.NewMalformedPageError(uri)
	default:
		return fmt.Errorf("failed to resolve post: %w", err)
	}
}
