package llm

import (
	"DealSync/internal/config"
	"DealSync/internal/utils/httpclient"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"DealSync/internal/interfaces"
	"DealSync/internal/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const instructionPrompt = `You extract used graphics card (GPU) model and price pairs from r/hardwareswap listings.

Rules:
- Only discrete desktop GPUs: NVIDIA 1000-5000 series, AMD 6000/7000/9000 series.
- A listing may contain several GPUs; return each one separately.
- Ignore CPUs, motherboards, PSUs, RAM, laptops, full or custom PCs, bundles, waterblocks and accessories.
- Ignore numbers that are memory or storage speeds (e.g. "6800 MT/s").
- Skip untested, broken or for-parts cards, trade-only posts and posts without a clear asking price.
- Sold listings with a known selling price are included.
- If both local and shipped prices are given, use the shipped price.
- Model is the number plus suffix only, with a space before suffixes ("3080 Ti", "6800 XT", "4090"); no "RTX"/"RX" prefix or brand names.
- Prices are integers in dollars, no currency symbol.

Valid models (case and space insensitive):
%s

Return a JSON array only. Each element: {"model": "<model>", "price": <integer>, "listing_id": "Listing N"} where N is the listing number below.

Listings:
%s`

type Adapter struct {
	cfg     *config.OracleConfig
	client  openai.Client
	catalog *config.CatalogStore
	logger  *logrus.Logger
}

func NewOpenAIAdapter(cfg *config.OracleConfig, catalog *config.CatalogStore, logger *logrus.Logger) interfaces.ExtractionOracle {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpclient.NewHTTPClient(&cfg.HTTP, logger)),
		// 失败由下一次调度重试，这里不做重试
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Adapter{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		catalog: catalog,
		logger:  logger,
	}
}

// Extract 一次调用处理一批帖子文本，返回未经校验的抽取结果
func (a *Adapter) Extract(ctx context.Context, texts []string) ([]model.ExtractedEntry, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prompt := BuildPrompt(a.catalog.Current().Models, texts)

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(a.cfg.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("调用抽取服务失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("抽取服务返回空choices")
	}

	entries, err := ParseEntries(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{
		"batch":   len(texts),
		"entries": len(entries),
	}).Debug("抽取完成")
	return entries, nil
}

// BuildPrompt 拼接指令、词表与带编号的帖子文本（Listing 1 起）
func BuildPrompt(models []string, texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Listing %d:\n%s", i+1, t)
	}
	return fmt.Sprintf(instructionPrompt, strings.Join(models, ", "), b.String())
}

// ParseEntries 解析抽取服务返回的 JSON 数组，容忍 ```json 代码块包裹
func ParseEntries(content string) ([]model.ExtractedEntry, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("抽取结果不是JSON数组: %.80q", content)
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("解析抽取结果失败: %w", err)
	}

	entries := make([]model.ExtractedEntry, 0, len(items))
	for _, item := range items {
		raw, _ := json.Marshal(item)
		entries = append(entries, model.ExtractedEntry{
			Model:      scalarString(item["model"]),
			Price:      item["price"],
			ListingRef: scalarString(item["listing_id"]),
			Raw:        raw,
		})
	}
	return entries, nil
}

// scalarString 字符串去引号，数字原样返回，其他类型返回空
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
