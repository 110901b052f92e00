package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Catalog 可热更新的词表配置：型号词表、排除关键词、评级阈值
type Catalog struct {
	Models       []string         `mapstructure:"models"`        // 已知显卡型号（含无空格写法）
	SkipKeywords []string         `mapstructure:"skip_keywords"` // 整机/捆绑出售关键词
	Rating       RatingThresholds `mapstructure:"rating"`
}

// RatingThresholds z-score 评级阈值（含边界，从低到高依次判断）
type RatingThresholds struct {
	Great float64 `mapstructure:"great"`
	Good  float64 `mapstructure:"good"`
	Fair  float64 `mapstructure:"fair"`
}

// DefaultRatingThresholds 默认评级阈值
func DefaultRatingThresholds() RatingThresholds {
	return RatingThresholds{Great: -2.0, Good: -1.0, Fair: 0.5}
}

// Validate 校验词表
func (c *Catalog) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("型号词表为空")
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("第%d个型号为空", i+1)
		}
	}
	r := c.Rating
	if !(r.Great < r.Good && r.Good < r.Fair) {
		return fmt.Errorf("评级阈值必须递增: great=%.2f good=%.2f fair=%.2f", r.Great, r.Good, r.Fair)
	}
	return nil
}

// CanonicalModel 词表中与 name 忽略大小写完全相等的型号，返回词表写法
func (c *Catalog) CanonicalModel(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, m := range c.Models {
		if strings.EqualFold(m, name) {
			return m, true
		}
	}
	return "", false
}

// LoadCatalog 读取词表文件
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return readCatalog(v)
}

func readCatalog(v *viper.Viper) (*Catalog, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取词表失败: %w", err)
	}
	cat := &Catalog{Rating: DefaultRatingThresholds()}
	if err := v.Unmarshal(cat); err != nil {
		return nil, fmt.Errorf("解析词表失败: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// CatalogStore 持有当前生效的词表，文件变更时原子替换
type CatalogStore struct {
	current atomic.Pointer[Catalog]
	v       *viper.Viper
	logger  *logrus.Logger
}

// NewCatalogStore 以给定词表创建（测试或无文件场景）
func NewCatalogStore(cat *Catalog) *CatalogStore {
	s := &CatalogStore{}
	s.current.Store(cat)
	return s
}

// OpenCatalogStore 读取词表文件并监听变更
func OpenCatalogStore(path string, logger *logrus.Logger) (*CatalogStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	cat, err := readCatalog(v)
	if err != nil {
		return nil, err
	}
	s := &CatalogStore{v: v, logger: logger}
	s.current.Store(cat)

	v.OnConfigChange(func(e fsnotify.Event) {
		s.reload(e.Name)
	})
	v.WatchConfig()
	logger.WithFields(logrus.Fields{
		"path":     path,
		"models":   len(cat.Models),
		"keywords": len(cat.SkipKeywords),
	}).Info("词表加载成功，已开启热更新")
	return s, nil
}

func (s *CatalogStore) reload(name string) {
	cat, err := readCatalog(s.v)
	if err != nil {
		// 校验失败保留旧词表
		s.logger.WithError(err).WithField("file", name).Warn("词表热更新失败，继续使用旧词表")
		return
	}
	s.Swap(cat)
	s.logger.WithFields(logrus.Fields{
		"file":     name,
		"models":   len(cat.Models),
		"keywords": len(cat.SkipKeywords),
	}).Info("词表已热更新")
}

// Swap 原子替换当前词表
func (s *CatalogStore) Swap(cat *Catalog) {
	s.current.Store(cat)
}

// Current 当前词表（只读，不要修改返回值）
func (s *CatalogStore) Current() *Catalog {
	return s.current.Load()
}
