package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"InfoSpider/internal/crawler"
	"InfoSpider/internal/domain"
)

const patentListingHTML = `
<html><body>
<div class="result">
  <h3><a href="/patent/CN202310123456">一种协作机器人关节结构</a></h3>
  <div class="c_abstract">本发明公开了一种协作机器人关节结构。</div>
  <div>申请号: CN202310123456.7 申请人: 节卡机器人股份有限公司 发明人: 张三</div>
</div>
<div class="result">
  <h3><a>一种无链接但有申请号的专利</a></h3>
  <div>申请(专利)号：CN202410987654.1</div>
</div>
<div class="result">
  <h3><a>既无链接也无申请号</a></h3>
</div>
</body></html>`

func TestPatentCrawlExtractsMetadata(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(patentListingHTML))
	}))
	defer server.Close()

	c := NewPatentHTML(testFetcher(server), nil)
	records, err := c.Crawl(context.Background(), crawler.Request{
		Source: domain.Source{
			Name:      "专利搜索",
			Type:      domain.TypePatent,
			SearchURL: server.URL + "/s?wd={keyword}",
		},
		Keywords: []string{"机器人"},
	})
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}

	// Third entry has nothing to key on and is dropped.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}

	first := records[0]
	if first.Title != "一种协作机器人关节结构" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.ExtraField(domain.ExtraApplicationNo) != "CN202310123456.7" {
		t.Fatalf("application number not extracted: %s", first.ExtraField(domain.ExtraApplicationNo))
	}
	if first.ExtraField(domain.ExtraApplicant) != "节卡机器人股份有限公司" {
		t.Fatalf("applicant not extracted: %s", first.ExtraField(domain.ExtraApplicant))
	}
	if first.ExtraField(domain.ExtraInventor) != "张三" {
		t.Fatalf("inventor not extracted: %s", first.ExtraField(domain.ExtraInventor))
	}

	second := records[1]
	if second.URL != "" {
		t.Fatalf("expected empty URL, got %s", second.URL)
	}
	if second.ExtraField(domain.ExtraApplicationNo) != "CN202410987654.1" {
		t.Fatalf("alternate label not matched: %s", second.ExtraField(domain.ExtraApplicationNo))
	}

	// A patent without a URL still gets a stable identity via its number.
	if domain.Fingerprint(second) == "" {
		t.Fatal("fingerprint must not be empty")
	}
}
