// Package mail はサイトオーナーと投稿者へのメール通知を提供する。
//
// 通知はすべてベストエフォートであり、送信はgoroutineで非同期に行われる。
// 送信失敗はログに記録されるのみで、呼び出し元のワークフローを
// ブロックも巻き戻しもしない。
package mail

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"net/smtp"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/hitoshi/commentq/internal/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// controlChars はメールヘッダーから除去する制御文字。
// ヘッダーインジェクション（改行によるヘッダー追加）を防ぐ。
var controlChars = regexp.MustCompile(`[\x00-\x1F]`)

// SenderConfig はSenderの設定。
type SenderConfig struct {
	SMTPAddr string // host:port
	SMTPUser string // 空の場合は認証なしで送信する
	SMTPPass string
	From     string // 送信元アドレス
	Owner    string // サイトオーナーの通知先アドレス
	BaseURL  string
}

// Sender はSMTPリレー経由でメールを送信するNotifier実装。
type Sender struct {
	config    SenderConfig
	logger    *slog.Logger
	templates *template.Template

	// sendFunc はテスト用に送信処理を差し替え可能にする。
	sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSender はSenderを生成する。埋め込みテンプレートのパースに失敗した場合は
// エラーを返す（起動時に検出される）。
func NewSender(config SenderConfig, logger *slog.Logger) (*Sender, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail templates: %w", err)
	}

	return &Sender{
		config:    config,
		logger:    logger,
		templates: tmpl,
		sendFunc:  smtp.SendMail,
	}, nil
}

// NotifyNewComment はモデレーション依頼メールをサイトオーナーへ送信する。
// reviewURLはキュートークンを含むモデレーションリンク。
func (s *Sender) NotifyNewComment(rec *model.PendingComment, reviewURL string) error {
	templateName := "new_comment.tmpl"
	subject := fmt.Sprintf("新しいコメント: %s", rec.PostTitle)
	if rec.Type == model.RecordTypeMention {
		templateName = "new_mention.tmpl"
		subject = fmt.Sprintf("新しいWebmention: %s", rec.PostTitle)
	}

	body, err := s.render(templateName, map[string]any{
		"Record":    rec,
		"ReviewURL": reviewURL,
		"BaseURL":   s.config.BaseURL,
		"CreatedAt": rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return err
	}

	s.sendAsync(s.config.Owner, subject, body)
	return nil
}

// NotifyReply はオーナー返信の通知メールを投稿者へ送信する。
// approvedは元コメントが承認されたかどうかを本文に反映する。
func (s *Sender) NotifyReply(rec *model.PendingComment, replyHTML string, approved bool) error {
	if rec.AuthorEmail == "" {
		return nil
	}

	body, err := s.render("comment_reply.tmpl", map[string]any{
		"Record":   rec,
		"Reply":    replyHTML,
		"Approved": approved,
		"PostURL":  strings.TrimSuffix(s.config.BaseURL, "/") + rec.PostURI,
	})
	if err != nil {
		return err
	}

	s.sendAsync(rec.AuthorEmail, fmt.Sprintf("コメントへの返信: %s", rec.PostTitle), body)
	return nil
}

// render は指定テンプレートでメール本文を生成する。
func (s *Sender) render(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render mail template %s: %w", name, err)
	}
	return buf.String(), nil
}

// sendAsync はメッセージを組み立ててgoroutineで送信する。
// 送信失敗はログに記録されるのみ。
func (s *Sender) sendAsync(to, subject, body string) {
	msg := s.buildMessage(to, subject, body)

	var auth smtp.Auth
	if s.config.SMTPUser != "" {
		host := s.config.SMTPAddr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.config.SMTPUser, s.config.SMTPPass, host)
	}

	go func() {
		start := time.Now()
		if err := s.sendFunc(s.config.SMTPAddr, auth, s.config.From, []string{to}, msg); err != nil {
			s.logger.Error("failed to send mail",
				slog.String("to", to),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("mail sent",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}()
}

// buildMessage はヘッダーと本文からメールメッセージを組み立てる。
// ヘッダー値は制御文字を除去してから使用する。
func (s *Sender) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + sanitizeHeader(s.config.From) + "\r\n")
	b.WriteString("To: " + sanitizeHeader(to) + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader はヘッダー値から改行を含む制御文字を除去する。
func sanitizeHeader(v string) string {
	return controlChars.ReplaceAllString(v, "")
}
