// Package webhook delivers record batches to a Feishu-compatible group
// webhook as interactive cards with signed payloads.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/filter"
	"InfoSpider/internal/ports"
	"InfoSpider/internal/retry"
)

const (
	newsSummaryRunes   = 180
	digestSummaryRunes = 200
)

// platformError is the webhook endpoint rejecting a payload it received.
// Retrying the same payload will not help.
type platformError struct {
	code int
	msg  string
}

func (e *platformError) Error() string {
	return fmt.Sprintf("webhook rejected payload: code=%d msg=%s", e.code, e.msg)
}

// Notifier posts signed interactive cards to the configured webhook. An empty
// URL puts it in archive-only mode; test mode builds payloads without sending.
type Notifier struct {
	url      string
	secret   string
	client   *http.Client
	policy   retry.Policy
	testMode bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotifier wires the webhook settings. Pass testMode to exercise payload
// construction without network traffic.
func NewNotifier(cfg config.WebhookConfig, testMode bool, logger *slog.Logger) *Notifier {
	policy := retry.Default()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	policy.IsRetryable = func(err error) bool {
		var perr *platformError
		return !errors.As(err, &perr)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Notifier{
		url:      cfg.URL,
		secret:   cfg.Secret,
		client:   &http.Client{Timeout: timeout},
		policy:   policy,
		testMode: testMode,
		logger:   logger,
		now:      time.Now,
	}
}

// PublishNews sends one news card. Empty batches and archive-only mode report
// skipped without touching the network.
func (n *Notifier) PublishNews(ctx context.Context, items []domain.Record) (ports.DeliveryOutcome, error) {
	if len(items) == 0 {
		return ports.DeliverySkipped, nil
	}
	card := newsCard(items)
	return n.deliver(ctx, card)
}

// PublishDigest sends the combined papers-and-patents card. An entirely empty
// digest is skipped.
func (n *Notifier) PublishDigest(ctx context.Context, papers, patents []domain.Record) (ports.DeliveryOutcome, error) {
	if len(papers) == 0 && len(patents) == 0 {
		return ports.DeliverySkipped, nil
	}
	card := digestCard(papers, patents)
	return n.deliver(ctx, card)
}

// PublishText sends a plain text message, used for connectivity tests and
// failure notices.
func (n *Notifier) PublishText(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	}
	_, err := n.deliver(ctx, payload)
	return err
}

func (n *Notifier) deliver(ctx context.Context, payload map[string]interface{}) (ports.DeliveryOutcome, error) {
	if n.url == "" {
		n.info("webhook url not configured, skipping delivery")
		return ports.DeliverySkipped, nil
	}

	if n.secret != "" {
		ts := n.now().Unix()
		payload["timestamp"] = strconv.FormatInt(ts, 10)
		payload["sign"] = sign(ts, n.secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.DeliveryFailed, fmt.Errorf("encoding webhook payload: %w", err)
	}

	if n.testMode {
		n.info("test mode, webhook payload built but not sent", "bytes", len(body))
		return ports.DeliverySkipped, nil
	}

	attempts, err := n.policy.Do(ctx, func() error {
		return n.post(ctx, body)
	})
	if err != nil {
		return ports.DeliveryFailed, fmt.Errorf("webhook delivery failed after %d attempts: %w", attempts, err)
	}

	n.info("webhook delivered", "attempts", attempts)
	return ports.DeliveryDelivered, nil
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("reading webhook response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}

	// Success is an explicit zero in whichever status field the platform
	// sends; an absent field says nothing and must not be read as success.
	var parsed struct {
		Code       *int   `json:"code"`
		StatusCode *int   `json:"StatusCode"`
		Msg        string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decoding webhook response: %w", err)
	}
	if (parsed.Code != nil && *parsed.Code == 0) || (parsed.StatusCode != nil && *parsed.StatusCode == 0) {
		return nil
	}

	code := 0
	switch {
	case parsed.Code != nil:
		code = *parsed.Code
	case parsed.StatusCode != nil:
		code = *parsed.StatusCode
	}
	return &platformError{code: code, msg: parsed.Msg}
}

// sign produces the webhook signature: HMAC-SHA256 over an empty message,
// keyed by "{timestamp}\n{secret}", base64 encoded.
func sign(timestamp int64, secret string) string {
	key := fmt.Sprintf("%d\n%s", timestamp, secret)
	mac := hmac.New(sha256.New, []byte(key))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newsCard(items []domain.Record) map[string]interface{} {
	elements := make([]interface{}, 0, len(items)*2)
	for i, item := range items {
		var lines []string
		lines = append(lines, fmt.Sprintf("**%d. [%s](%s)**", i+1, item.Title, item.URL))

		if techs := technicalKeywords(item.Matched); len(techs) > 0 {
			lines = append(lines, "🏷️ 技术关键词: "+strings.Join(techs, "、"))
		}
		if companies := item.Matched[filter.CompanyCategory]; len(companies) > 0 {
			lines = append(lines, "🏢 相关企业: "+strings.Join(companies, "、"))
		}

		meta := "📌 来源: " + item.SourceName
		if item.PublishedAt != nil {
			meta += "  📅 发布: " + item.PublishedAt.Format("2006-01-02")
		}
		lines = append(lines, meta)

		if item.Summary != "" {
			lines = append(lines, "📝 内容简介: "+truncate(item.Summary, newsSummaryRunes))
		}

		elements = append(elements, markdownElement(strings.Join(lines, "\n")))
		if i < len(items)-1 {
			elements = append(elements, map[string]string{"tag": "hr"})
		}
	}

	return cardPayload(fmt.Sprintf("📰 制造业新闻资讯 (%d条)", len(items)), "blue", elements)
}

func digestCard(papers, patents []domain.Record) map[string]interface{} {
	var elements []interface{}

	if len(papers) > 0 {
		elements = append(elements, markdownElement(fmt.Sprintf("**📄 最新论文 (%d篇)**", len(papers))))
		for i, paper := range papers {
			var lines []string
			lines = append(lines, fmt.Sprintf("**%d. [%s](%s)**", i+1, paper.Title, paper.URL))
			if authors := paper.ExtraField(domain.ExtraAuthors); authors != "" {
				lines = append(lines, "👤 作者: "+authors)
			}
			if pdf := paper.ExtraField(domain.ExtraPDFURL); pdf != "" {
				lines = append(lines, fmt.Sprintf("📎 [PDF](%s)", pdf))
			}
			if paper.Summary != "" {
				lines = append(lines, "📝 摘要: "+truncate(paper.Summary, digestSummaryRunes))
			}
			elements = append(elements, markdownElement(strings.Join(lines, "\n")))
		}
	}

	if len(patents) > 0 {
		if len(elements) > 0 {
			elements = append(elements, map[string]string{"tag": "hr"})
		}
		elements = append(elements, markdownElement(fmt.Sprintf("**📜 最新专利 (%d件)**", len(patents))))
		for i, patent := range patents {
			var lines []string
			title := patent.Title
			if patent.URL != "" {
				title = fmt.Sprintf("[%s](%s)", patent.Title, patent.URL)
			}
			lines = append(lines, fmt.Sprintf("**%d. %s**", i+1, title))
			if applicant := patent.ExtraField(domain.ExtraApplicant); applicant != "" {
				lines = append(lines, "🏢 申请人: "+applicant)
			}
			if no := patent.ExtraField(domain.ExtraApplicationNo); no != "" {
				lines = append(lines, "🔢 申请号: "+no)
			}
			if patent.Summary != "" {
				lines = append(lines, "📝 摘要: "+truncate(patent.Summary, digestSummaryRunes))
			}
			elements = append(elements, markdownElement(strings.Join(lines, "\n")))
		}
	}

	return cardPayload("📑 每周文献与专利汇总", "green", elements)
}

func cardPayload(title, template string, elements []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title":    map[string]string{"tag": "plain_text", "content": title},
				"template": template,
			},
			"elements": elements,
		},
	}
}

func markdownElement(content string) map[string]string {
	return map[string]string{"tag": "markdown", "content": content}
}

// technicalKeywords flattens every non-company category.
func technicalKeywords(matched domain.KeywordMatches) []string {
	filtered := domain.KeywordMatches{}
	for category, kws := range matched {
		if category == filter.CompanyCategory {
			continue
		}
		for _, kw := range kws {
			filtered.Add(category, kw)
		}
	}
	return filtered.Flatten()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func (n *Notifier) info(msg string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Info(msg, args...)
	}
}
