package model

import (
	"encoding/json"
	"time"
)

// Credential 数据源访问凭证，每次抓取运行开始时换取，过期即失效
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time // 零值表示未声明过期时间
}

// Valid 凭证在 now 时刻是否可用
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// RawPost 数据源返回的原始帖子
type RawPost struct {
	ID          string    // 平台原生帖子ID
	Disposition string    // 帖子状态（reddit flair：SELLING/CLOSED/...）
	Title       string    // 标题
	Body        string    // 正文
	URL         string    // 帖子链接
	CreatedAt   time.Time // 发布时间（UTC）
}

// Page 一页帖子，After 为空表示没有更多
type Page struct {
	Posts []*RawPost
	After string
}

// ExtractedEntry 抽取服务返回的单条结果（不可信，需经过校验）
type ExtractedEntry struct {
	Model      string
	Price      json.RawMessage // 数字或数字字符串
	ListingRef string          // 形如 "Listing 2"
	Raw        json.RawMessage // 原始条目，用于落库追溯
}
