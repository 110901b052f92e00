package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// TopicListingCreated 新挂牌记录入库
const TopicListingCreated = "listing.created"

// Event 进程内事件
type Event struct {
	Topic   string
	Payload any
}

// Handler 事件处理函数，返回的错误只记录日志
type Handler func(ctx context.Context, e Event) error

// Bus 同步发布/订阅；处理函数的错误和panic不会传给发布方
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	logger   *logrus.Logger
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{handlers: make(map[string][]namedHandler), logger: logger}
}

// Subscribe 注册处理函数，name 仅用于日志
func (b *Bus) Subscribe(topic, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], namedHandler{name: name, fn: fn})
}

// Publish 按注册顺序依次调用处理函数
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	hs := b.handlers[topic]
	b.mu.RUnlock()

	e := Event{Topic: topic, Payload: payload}
	for _, h := range hs {
		if err := b.dispatch(ctx, h, e); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"topic":   topic,
				"handler": h.name,
			}).Warn("事件处理失败")
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, h namedHandler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("处理函数panic: %v", r)
		}
	}()
	return h.fn(ctx, e)
}
