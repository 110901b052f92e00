package interfaces

import (
	"context"

	"DealSync/internal/model"
)

// ListingSource 论坛数据源必须实现的接口
type ListingSource interface {
	GetName() string                                                                         // 数据源名称
	Authenticate(ctx context.Context) (*model.Credential, error)                             // 换取本次运行使用的凭证
	FetchPage(ctx context.Context, cred *model.Credential, after string) (*model.Page, error) // 按游标拉取最新帖子
}

// ExtractionOracle 文本抽取服务接口，texts 中第 i 条对应 "Listing i+1"
type ExtractionOracle interface {
	Extract(ctx context.Context, texts []string) ([]model.ExtractedEntry, error)
}
