package service

import (
	"context"
	"fmt"

	"DealSync/internal/event"
	"DealSync/internal/model"
	"DealSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Notifier 价格提醒投递（邮件等渠道由外部服务实现）
type Notifier interface {
	Notify(ctx context.Context, pref *model.NotificationPreference, listing *model.Listing) error
}

// LogNotifier 只写日志的投递实现
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, pref *model.NotificationPreference, listing *model.Listing) error {
	n.logger.WithFields(logrus.Fields{
		"user_id":   pref.UserID,
		"email":     pref.UserEmail,
		"model":     listing.Model,
		"price":     listing.Price,
		"threshold": pref.PriceThreshold,
		"url":       listing.SourceURL,
	}).Info("价格提醒")
	return nil
}

// AlertService 新挂牌低于用户阈值时发送提醒
type AlertService struct {
	prefs    repository.PreferenceRepository
	notifier Notifier
	logger   *logrus.Logger
}

func NewAlertService(prefs repository.PreferenceRepository, notifier Notifier, logger *logrus.Logger) *AlertService {
	return &AlertService{prefs: prefs, notifier: notifier, logger: logger}
}

// HandleListingCreated listing.created 事件处理；单个用户投递失败不影响其他用户
func (s *AlertService) HandleListingCreated(ctx context.Context, e event.Event) error {
	listing, ok := e.Payload.(*model.Listing)
	if !ok || listing == nil {
		return fmt.Errorf("事件负载类型错误: %T", e.Payload)
	}
	prefs, err := s.prefs.FindMatching(ctx, listing.Model, listing.Price)
	if err != nil {
		return fmt.Errorf("查询%s提醒订阅失败: %w", listing.Model, err)
	}
	for _, p := range prefs {
		if err := s.notifier.Notify(ctx, p, listing); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": p.UserID,
				"model":   listing.Model,
			}).Warn("价格提醒发送失败")
		}
	}
	return nil
}

// Register 订阅 listing.created
func (s *AlertService) Register(bus *event.Bus) {
	bus.Subscribe(event.TopicListingCreated, "price-alert", s.HandleListingCreated)
}
