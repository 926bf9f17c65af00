package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"InfoSpider/internal/config"
	"InfoSpider/internal/domain"
	"InfoSpider/internal/filter"
	"InfoSpider/internal/ports"
)

func okResponse(w http.ResponseWriter) {
	_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
}

func newTestNotifier(url string, secret string) *Notifier {
	n := NewNotifier(config.WebhookConfig{
		URL:        url,
		Secret:     secret,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	}, false, nil)
	n.policy.InitialDelay = time.Millisecond
	return n
}

func sampleNews() []domain.Record {
	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return []domain.Record{
		{
			ContentType: domain.TypeNews,
			Title:       "协作机器人销量创新高",
			URL:         "https://example.com/news/1",
			SourceName:  "36氪",
			PublishedAt: &published,
			Summary:     "协作机器人市场持续增长。",
			Matched: domain.KeywordMatches{
				"robot":                {"协作机器人"},
				filter.CompanyCategory: {"节卡机器人"},
			},
		},
	}
}

func TestPublishNewsSignsPayload(t *testing.T) {
	t.Parallel()

	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		okResponse(w)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL, "topsecret")
	fixed := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	outcome, err := n.PublishNews(context.Background(), sampleNews())
	require.NoError(t, err)
	require.Equal(t, ports.DeliveryDelivered, outcome)

	require.Equal(t, "interactive", payload["msg_type"])
	require.Equal(t, fmt.Sprintf("%d", fixed.Unix()), payload["timestamp"])

	mac := hmac.New(sha256.New, []byte(fmt.Sprintf("%d\ntopsecret", fixed.Unix())))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	require.Equal(t, want, payload["sign"])

	card := payload["card"].(map[string]interface{})
	header := card["header"].(map[string]interface{})
	title := header["title"].(map[string]interface{})
	require.Equal(t, "📰 制造业新闻资讯 (1条)", title["content"])
	require.Equal(t, "blue", header["template"])

	elements := card["elements"].([]interface{})
	require.NotEmpty(t, elements)
	first := elements[0].(map[string]interface{})
	content := first["content"].(string)
	require.Contains(t, content, "协作机器人销量创新高")
	require.Contains(t, content, "技术关键词: 协作机器人")
	require.Contains(t, content, "相关企业: 节卡机器人")
	require.Contains(t, content, "来源: 36氪")
}

func TestPublishDigestBuildsBothSections(t *testing.T) {
	t.Parallel()

	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		okResponse(w)
	}))
	defer server.Close()

	papers := []domain.Record{{
		ContentType: domain.TypePaper,
		Title:       "Robot Manipulation",
		URL:         "https://arxiv.org/abs/2608.01234",
		Summary:     "a paper summary",
		Extra: map[string]string{
			domain.ExtraAuthors: "Alice Chen",
			domain.ExtraPDFURL:  "https://arxiv.org/pdf/2608.01234",
		},
	}}
	patents := []domain.Record{{
		ContentType: domain.TypePatent,
		Title:       "一种机械臂关节",
		Extra: map[string]string{
			domain.ExtraApplicant:     "节卡机器人股份有限公司",
			domain.ExtraApplicationNo: "CN202310123456.7",
		},
	}}

	outcome, err := newTestNotifier(server.URL, "").PublishDigest(context.Background(), papers, patents)
	require.NoError(t, err)
	require.Equal(t, ports.DeliveryDelivered, outcome)

	// Without a secret the payload carries no signature fields.
	require.NotContains(t, payload, "sign")

	card := payload["card"].(map[string]interface{})
	header := card["header"].(map[string]interface{})
	require.Equal(t, "green", header["template"])

	raw, err := json.Marshal(card["elements"])
	require.NoError(t, err)
	body := string(raw)
	require.Contains(t, body, "最新论文 (1篇)")
	require.Contains(t, body, "最新专利 (1件)")
	require.Contains(t, body, "Alice Chen")
	require.Contains(t, body, "CN202310123456.7")
}

func TestPublishSkipsWithoutURL(t *testing.T) {
	t.Parallel()

	n := newTestNotifier("", "secret")
	outcome, err := n.PublishNews(context.Background(), sampleNews())
	require.NoError(t, err)
	require.Equal(t, ports.DeliverySkipped, outcome)
}

func TestPublishSkipsEmptyBatches(t *testing.T) {
	t.Parallel()

	n := newTestNotifier("http://unused.invalid", "secret")

	outcome, err := n.PublishNews(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, ports.DeliverySkipped, outcome)

	outcome, err = n.PublishDigest(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, ports.DeliverySkipped, outcome)
}

func TestTestModeBuildsWithoutSending(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		okResponse(w)
	}))
	defer server.Close()

	n := NewNotifier(config.WebhookConfig{URL: server.URL, Timeout: time.Second}, true, nil)
	outcome, err := n.PublishNews(context.Background(), sampleNews())
	require.NoError(t, err)
	require.Equal(t, ports.DeliverySkipped, outcome)
	require.Zero(t, calls.Load(), "test mode must not send")
}

func TestDeliveryRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		okResponse(w)
	}))
	defer server.Close()

	outcome, err := newTestNotifier(server.URL, "s").PublishNews(context.Background(), sampleNews())
	require.NoError(t, err)
	require.Equal(t, ports.DeliveryDelivered, outcome)
	require.EqualValues(t, 3, calls.Load())
}

func TestDeliveryDoesNotRetryPlatformRejection(t *testing.T) {
	t.Parallel()

	// Real rejection bodies carry only "code"; the absent StatusCode field
	// must not read as success.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	}))
	defer server.Close()

	outcome, err := newTestNotifier(server.URL, "wrong").PublishNews(context.Background(), sampleNews())
	require.Error(t, err)
	require.Equal(t, ports.DeliveryFailed, outcome)
	require.EqualValues(t, 1, calls.Load(), "platform rejection is permanent")
}

func TestDeliveryAcceptsEitherZeroStatusField(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"code":       `{"code":0,"msg":"success"}`,
		"StatusCode": `{"StatusCode":0}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			outcome, err := newTestNotifier(server.URL, "s").PublishNews(context.Background(), sampleNews())
			require.NoError(t, err)
			require.Equal(t, ports.DeliveryDelivered, outcome)
		})
	}
}

func TestDeliveryRejectsResponseWithoutStatusFields(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"msg":"unrecognized"}`))
	}))
	defer server.Close()

	outcome, err := newTestNotifier(server.URL, "s").PublishNews(context.Background(), sampleNews())
	require.Error(t, err)
	require.Equal(t, ports.DeliveryFailed, outcome)
}

func TestPublishTextSendsPlainMessage(t *testing.T) {
	t.Parallel()

	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		okResponse(w)
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, "").PublishText(context.Background(), "连通性测试")
	require.NoError(t, err)
	require.Equal(t, "text", payload["msg_type"])
	content := payload["content"].(map[string]interface{})
	require.Equal(t, "连通性测试", content["text"])
}

func TestSummaryTruncation(t *testing.T) {
	t.Parallel()

	long := make([]rune, 300)
	for i := range long {
		long[i] = '字'
	}
	got := truncate(string(long), 180)
	require.Equal(t, 183, len([]rune(got)), "truncated to limit plus ellipsis dots")
}
