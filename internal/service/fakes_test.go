package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"DealSync/internal/config"
	"DealSync/internal/event"
	"DealSync/internal/lock"
	"DealSync/internal/model"
	"DealSync/internal/repository"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testCatalog() *config.CatalogStore {
	return config.NewCatalogStore(&config.Catalog{
		Models:       []string{"1080", "3080", "3080 Ti", "4090", "RX 6800 XT"},
		SkipKeywords: []string{"custom build", "prebuilt", "whole pc"},
		Rating:       config.DefaultRatingThresholds(),
	})
}

// memListings 内存版 ListingRepository，聚合口径与 SQL 一致（样本标准差）
type memListings struct {
	mu     sync.Mutex
	rows   []*model.Listing
	nextID uint64
	err    error // 非空时所有读操作返回该错误
}

func (m *memListings) add(modelName string, price int, postedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows = append(m.rows, &model.Listing{
		ID:           m.nextID,
		Model:        modelName,
		Price:        price,
		SourceURL:    fmt.Sprintf("https://example.test/%d", m.nextID),
		PostedAt:     postedAt,
		SourcePostID: fmt.Sprintf("seed%d", m.nextID),
	})
}

func (m *memListings) Create(ctx context.Context, l *model.Listing) (bool, error) {
	if l.Price <= 0 {
		return false, repository.ErrInvalidPrice
	}
	// 与 postgres 一致：超出列宽的写入直接报错
	if l.Price > model.ListingPriceMax || utf8.RuneCountInString(l.Model) > model.ListingModelMaxLen {
		return false, fmt.Errorf("value out of range for column: %s/%d", l.Model, l.Price)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SourcePostID == l.SourcePostID && r.ExtractIndex == l.ExtractIndex {
			return false, nil
		}
	}
	m.nextID++
	cp := *l
	cp.ID = m.nextID
	m.rows = append(m.rows, &cp)
	l.ID = cp.ID
	return true, nil
}

func (m *memListings) ExistsBySourcePostID(ctx context.Context, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SourcePostID == postID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memListings) List(ctx context.Context, f repository.ListingFilter) ([]*model.Listing, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Listing
	for _, r := range m.rows {
		if f.Model != "" && r.Model != f.Model {
			continue
		}
		if f.Since != nil && r.PostedAt.Before(*f.Since) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	return out, nil
}

func (m *memListings) prices(modelName string, since *time.Time) []float64 {
	var xs []float64
	for _, r := range m.rows {
		if r.Model == modelName && (since == nil || !r.PostedAt.Before(*since)) {
			xs = append(xs, float64(r.Price))
		}
	}
	return xs
}

func (m *memListings) ModelStats(ctx context.Context, modelName string, since time.Time) (*model.ModelStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	xs := m.prices(modelName, &since)
	st := &model.ModelStats{Model: modelName, Count: int64(len(xs))}
	if len(xs) > 0 {
		mean := average(xs)
		st.Mean = &mean
	}
	if ms, ok := sampleStats(xs); ok {
		st.StdDev = &ms.std
	}
	return st, nil
}

func (m *memListings) means() map[string]float64 {
	means := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range m.rows {
		means[r.Model] += float64(r.Price)
		counts[r.Model]++
	}
	for k := range means {
		means[k] /= float64(counts[k])
	}
	return means
}

func (m *memListings) MarketPrices(ctx context.Context) ([]model.MarketPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MarketPrice
	for k, v := range m.means() {
		out = append(out, model.MarketPrice{Model: k, AvgPrice: roundInt(v), Listings: int64(len(m.prices(k, nil)))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgPrice > out[j].AvgPrice })
	return out, nil
}

func (m *memListings) MarketPrice(ctx context.Context, modelName string) (*model.MarketPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.means()[modelName]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.MarketPrice{Model: modelName, AvgPrice: roundInt(v), Listings: int64(len(m.prices(modelName, nil)))}, nil
}

func (m *memListings) AllTimeMeans(ctx context.Context) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.means(), nil
}

func (m *memListings) ListOutsideBand(ctx context.Context, modelName string, lower, upper float64) ([]*model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Listing
	for _, r := range m.rows {
		p := float64(r.Price)
		if r.Model == modelName && (p > upper || p < lower) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteOutsideBand 单条语句语义：均价在删除前一次性算好
func (m *memListings) DeleteOutsideBand(ctx context.Context, threshold float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	means := m.means()
	kept := m.rows[:0]
	var n int64
	for _, r := range m.rows {
		mean, p := means[r.Model], float64(r.Price)
		if p > mean*threshold || p < mean/threshold {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

func (m *memListings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memRuns struct {
	saved []*model.IngestionRun
}

func (r *memRuns) Save(ctx context.Context, run *model.IngestionRun) error {
	r.saved = append(r.saved, run)
	return nil
}

func (r *memRuns) ListRecent(ctx context.Context, limit int) ([]*model.IngestionRun, error) {
	return r.saved, nil
}

// fakeSource 固定分页的数据源，failAt>0 时第 failAt 次拉取返回错误
type fakeSource struct {
	pages   [][]*model.RawPost
	failAt  int
	fetches int
	auths   int
}

func (s *fakeSource) GetName() string { return "fake" }

func (s *fakeSource) Authenticate(ctx context.Context) (*model.Credential, error) {
	s.auths++
	return &model.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *fakeSource) FetchPage(ctx context.Context, cred *model.Credential, after string) (*model.Page, error) {
	s.fetches++
	if s.failAt > 0 && s.fetches == s.failAt {
		return nil, errors.New("connection reset")
	}
	idx := 0
	if after != "" {
		fmt.Sscanf(after, "p%d", &idx)
	}
	page := &model.Page{Posts: s.pages[idx]}
	if idx+1 < len(s.pages) {
		page.After = fmt.Sprintf("p%d", idx+1)
	}
	return page, nil
}

// fakeOracle 返回内容由 respond 决定
type fakeOracle struct {
	calls   [][]string
	respond func(texts []string) []model.ExtractedEntry
	err     error
}

func (o *fakeOracle) Extract(ctx context.Context, texts []string) ([]model.ExtractedEntry, error) {
	o.calls = append(o.calls, texts)
	if o.err != nil {
		return nil, o.err
	}
	return o.respond(texts), nil
}

func entry(modelName string, price any, ref string) model.ExtractedEntry {
	p, _ := json.Marshal(price)
	raw, _ := json.Marshal(map[string]any{"model": modelName, "price": price, "listing_id": ref})
	return model.ExtractedEntry{Model: modelName, Price: p, ListingRef: ref, Raw: raw}
}

type recordingNotifier struct {
	got []string
	err error
}

func (n *recordingNotifier) Notify(ctx context.Context, pref *model.NotificationPreference, l *model.Listing) error {
	n.got = append(n.got, fmt.Sprintf("%d:%s:%d", pref.UserID, l.Model, l.Price))
	return n.err
}

type memPrefs struct {
	rows []*model.NotificationPreference
	err  error
}

func (p *memPrefs) FindMatching(ctx context.Context, modelName string, price int) ([]*model.NotificationPreference, error) {
	if p.err != nil {
		return nil, p.err
	}
	var out []*model.NotificationPreference
	for _, r := range p.rows {
		if equalFold(r.Model, modelName) && r.PriceThreshold >= price {
			out = append(out, r)
		}
	}
	return out, nil
}

func equalFold(a, b string) bool { return normalize(a) == normalize(b) }

type ingestFixture struct {
	svc      *IngestService
	listings *memListings
	runs     *memRuns
	source   *fakeSource
	oracle   *fakeOracle
	bus      *event.Bus
	sleeps   int
}

func newIngestFixture(pages [][]*model.RawPost, respond func([]string) []model.ExtractedEntry) *ingestFixture {
	f := &ingestFixture{
		listings: &memListings{},
		runs:     &memRuns{},
		source:   &fakeSource{pages: pages},
		oracle:   &fakeOracle{respond: respond},
		bus:      event.NewBus(quietLogger()),
	}
	cat := testCatalog()
	cfg := &config.IngestConfig{
		BatchSize:     1,
		BackfillMax:   275,
		CallDelay:     300 * time.Millisecond,
		MaxTextLength: 1400,
		Dispositions:  []string{"SELLING", "CLOSED"},
	}
	f.svc = NewIngestService(IngestDeps{
		Config:    cfg,
		Source:    f.source,
		Oracle:    f.oracle,
		Listings:  f.listings,
		Runs:      f.runs,
		Filter:    NewCandidateFilter(cat, cfg.MaxTextLength),
		Validator: NewValidator(cat),
		Events:    f.bus,
		Guard:     lock.NewLocalGuard(),
		Logger:    quietLogger(),
	})
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}
	return f
}

func post(id, flair, title string) *model.RawPost {
	return &model.RawPost{
		ID:          id,
		Disposition: flair,
		Title:       title,
		Body:        "local pickup or shipped",
		URL:         "https://reddit.test/" + id,
		CreatedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func repositoryFilter(modelName string) repository.ListingFilter {
	return repository.ListingFilter{Model: modelName}
}
