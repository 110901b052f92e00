package model

// RedditListing reddit /r/{sub}/new 接口返回结构（只保留用到的字段）
type RedditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    *string       `json:"after"`
		Children []RedditChild `json:"children"`
	} `json:"data"`
}

type RedditChild struct {
	Kind string     `json:"kind"`
	Data RedditPost `json:"data"`
}

type RedditPost struct {
	ID            string  `json:"id"`              // 帖子ID（不含 t3_ 前缀）
	Title         string  `json:"title"`           // 标题
	Selftext      string  `json:"selftext"`        // 正文
	URL           string  `json:"url"`             // 链接
	Permalink     string  `json:"permalink"`       // 站内相对路径
	LinkFlairText *string `json:"link_flair_text"` // 帖子状态，可能为 null
	CreatedUTC    float64 `json:"created_utc"`     // 发布时间（秒）
}
