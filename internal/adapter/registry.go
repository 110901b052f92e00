// internal/adapter/registry.go
package adapter

import (
	"DealSync/internal/config"
	"DealSync/internal/interfaces"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Factory 数据源适配器工厂函数签名
// 入参：数据源配置、日志实例
// 出参：实现ListingSource接口的适配器实例
type Factory func(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.ListingSource

var (
	registryMu      sync.RWMutex
	factoryRegistry = make(map[string]Factory)
)

// Register 供适配器init函数调用，注册工厂函数
func Register(kind string, factory Factory) {
	if factory == nil {
		panic(fmt.Sprintf("数据源%s的工厂函数不能为nil", kind))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factoryRegistry[kind]; exists {
		logrus.Warnf("数据源%s的适配器已注册，将覆盖原有实现", kind)
	}
	factoryRegistry[kind] = factory
}

// GetFactory 获取指定数据源的工厂函数
func GetFactory(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := factoryRegistry[kind]
	return factory, ok
}

// ListFactories 列出所有已注册的数据源（排序后）
func ListFactories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(factoryRegistry))
	for k := range factoryRegistry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewListingSource 按配置中的 kind 创建数据源实例
func NewListingSource(cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.ListingSource, error) {
	factory, ok := GetFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("未支持的数据源: %s（已注册：%v）", cfg.Kind, ListFactories())
	}
	src := factory(cfg, logger)
	if src == nil {
		return nil, fmt.Errorf("数据源%s的工厂函数返回nil", cfg.Kind)
	}
	logger.WithField("source", src.GetName()).Info("数据源适配器初始化成功")
	return src, nil
}
