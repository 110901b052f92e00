package service

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"DealSync/internal/config"
)

// 丢弃原因（用于运行统计）
const (
	ReasonDisposition = "disposition"
	ReasonTooLong     = "too_long"
	ReasonNoModel     = "no_model_in_title"
	ReasonKeyword     = "skip_keyword"
	ReasonPrice       = "bad_price"
	ReasonRef         = "bad_listing_ref"
	ReasonModel       = "model_mismatch"
	ReasonDuplicate   = "duplicate"
)

// CandidateFilter 送入抽取前的廉价过滤，词表来自可热更新的 catalog
type CandidateFilter struct {
	catalog *config.CatalogStore
	maxLen  int

	mu       sync.Mutex
	compiled *config.Catalog // 与 patterns 对应的词表版本
	patterns []*regexp.Regexp
}

func NewCandidateFilter(catalog *config.CatalogStore, maxLen int) *CandidateFilter {
	return &CandidateFilter{catalog: catalog, maxLen: maxLen}
}

// Accepts 判断帖子是否值得送入抽取；拒绝时返回原因，关键词命中时原因带上关键词
func (f *CandidateFilter) Accepts(title, body string) (bool, string) {
	// 按字符计，口径为 title + " " + body
	if f.maxLen > 0 && utf8.RuneCountInString(title)+1+utf8.RuneCountInString(body) > f.maxLen {
		return false, ReasonTooLong
	}

	matched := false
	for _, re := range f.modelPatterns() {
		if re.MatchString(title) {
			matched = true
			break
		}
	}
	if !matched {
		return false, ReasonNoModel
	}

	text := strings.ToLower(title + " " + body)
	for _, kw := range f.catalog.Current().SkipKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return false, ReasonKeyword + ":" + kw
		}
	}
	return true, ""
}

// modelPatterns 词表变化后重新编译
func (f *CandidateFilter) modelPatterns() []*regexp.Regexp {
	cat := f.catalog.Current()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compiled == cat {
		return f.patterns
	}
	patterns := make([]*regexp.Regexp, 0, len(cat.Models))
	for _, m := range cat.Models {
		patterns = append(patterns, modelPattern(m))
	}
	f.compiled, f.patterns = cat, patterns
	return patterns
}

// modelPattern 两侧不能紧挨字母或数字，1080 不会命中 10800
func modelPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^a-z0-9])` + regexp.QuoteMeta(strings.TrimSpace(name)) + `([^a-z0-9]|$)`)
}
