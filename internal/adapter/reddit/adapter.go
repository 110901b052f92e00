package reddit

import (
	"DealSync/internal/adapter"
	"DealSync/internal/config"
	"DealSync/internal/utils/httpclient"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"DealSync/internal/interfaces"
	"DealSync/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrCredentialExpired 凭证缺失或已过期，需要重新换取
var ErrCredentialExpired = errors.New("reddit凭证无效或已过期")

func init() {
	adapter.Register("reddit", NewRedditAdapter)
}

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	oauth      *clientcredentials.Config
	logger     *logrus.Logger
	now        func() time.Time
}

func NewRedditAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.ListingSource {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(&cfg.HTTP, logger),
		oauth: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		logger: logger,
		now:    time.Now,
	}
}

// GetName ========== 实现ListingSource接口 ==========
func (a *Adapter) GetName() string {
	return "reddit"
}

// Authenticate client_credentials 换取 bearer token；token 只在本次运行内传递使用
func (a *Adapter) Authenticate(ctx context.Context) (*model.Credential, error) {
	// 让 oauth2 复用带代理/UA 的客户端
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("换取reddit凭证失败: %w", err)
	}
	return &model.Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
		ExpiresAt:   tok.Expiry,
	}, nil
}

// FetchPage 拉取版块最新帖子，after 为上一页返回的游标
func (a *Adapter) FetchPage(ctx context.Context, cred *model.Credential, after string) (*model.Page, error) {
	if !cred.Valid(a.now()) {
		return nil, ErrCredentialExpired
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(a.cfg.PageLimit))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	pageURL := fmt.Sprintf("%s/r/%s/new?%s", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Subreddit, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建reddit请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取reddit帖子失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Errorf("关闭reddit响应体失败: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reddit返回异常状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var listing model.RedditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("解析reddit帖子失败: %w", err)
	}

	page := &model.Page{Posts: make([]*model.RawPost, 0, len(listing.Data.Children))}
	for _, child := range listing.Data.Children {
		page.Posts = append(page.Posts, a.toRawPost(child.Data))
	}
	if listing.Data.After != nil {
		page.After = *listing.Data.After
	}

	a.logger.WithFields(logrus.Fields{
		"after": after,
		"posts": len(page.Posts),
		"next":  page.After,
	}).Debug("reddit分页拉取完成")
	return page, nil
}

func (a *Adapter) toRawPost(p model.RedditPost) *model.RawPost {
	flair := ""
	if p.LinkFlairText != nil {
		flair = strings.TrimSpace(*p.LinkFlairText)
	}
	sec, frac := math.Modf(p.CreatedUTC)
	return &model.RawPost{
		ID:          p.ID,
		Disposition: flair,
		Title:       p.Title,
		Body:        p.Selftext,
		URL:         p.URL,
		CreatedAt:   time.Unix(int64(sec), int64(frac*1e9)).UTC(),
	}
}
