package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"DealSync/internal/config"
	"DealSync/internal/model"
)

var (
	errBadPrice   = errors.New("价格无法解析或不为正")
	errBadRef     = errors.New("listing_id缺失或越界")
	errModelTitle = errors.New("型号未出现在标题中")
	errModelVocab = errors.New("型号不在词表中")
	errModelLong  = errors.New("型号超出列宽")
)

// ValidatedEntry 通过校验、可以落库的抽取结果
type ValidatedEntry struct {
	Index int // 批内下标（0起）
	Model string
	Price int
}

// Validator 校验抽取结果；strict 模式下型号必须命中词表
type Validator struct {
	catalog *config.CatalogStore
}

func NewValidator(catalog *config.CatalogStore) *Validator {
	return &Validator{catalog: catalog}
}

// Validate 校验一条结果；titles 为本批次帖子标题，顺序与送入抽取时一致
func (v *Validator) Validate(e model.ExtractedEntry, titles []string, strict bool) (*ValidatedEntry, string, error) {
	price, err := coercePrice(e.Price)
	if err != nil {
		return nil, ReasonPrice, err
	}
	idx, err := parseListingRef(e.ListingRef, len(titles))
	if err != nil {
		return nil, ReasonRef, err
	}

	name := strings.TrimSpace(e.Model)
	norm := normalize(name)
	if norm == "" || !strings.Contains(normalize(titles[idx]), norm) {
		return nil, ReasonModel, fmt.Errorf("%w: %q", errModelTitle, name)
	}
	if strict {
		canonical, ok := v.catalog.Current().CanonicalModel(name)
		if !ok {
			return nil, ReasonModel, fmt.Errorf("%w: %q", errModelVocab, name)
		}
		name = canonical
	}
	if utf8.RuneCountInString(name) > model.ListingModelMaxLen {
		return nil, ReasonModel, fmt.Errorf("%w: %q", errModelLong, name)
	}
	return &ValidatedEntry{Index: idx, Model: name, Price: price}, "", nil
}

// normalize 转小写并去掉所有空白
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// coercePrice 数字或数字字符串，小数部分截断；结果须落在 (0, ListingPriceMax]
func coercePrice(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, errBadPrice
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, errBadPrice
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	// 截断后为 0 的小数也算非正
	if err != nil || math.IsNaN(f) || f < 1 || f >= float64(model.ListingPriceMax)+1 {
		return 0, fmt.Errorf("%w: %q", errBadPrice, s)
	}
	return int(f), nil
}

// parseListingRef "Listing 3" -> 2
func parseListingRef(ref string, batchLen int) (int, error) {
	var digits strings.Builder
	for _, r := range ref {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", errBadRef, ref)
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n < 1 || n > batchLen {
		return 0, fmt.Errorf("%w: %q", errBadRef, ref)
	}
	return n - 1, nil
}
