package service

import (
	"context"
	"errors"
	"testing"

	"DealSync/internal/event"
	"DealSync/internal/model"
)

func TestAlertMatchesThresholdInclusive(t *testing.T) {
	notifier := &recordingNotifier{}
	prefs := &memPrefs{rows: []*model.NotificationPreference{
		{UserID: 7, Model: "RX 6800 XT", PriceThreshold: 400},
		{UserID: 8, Model: "rx 6800 xt", PriceThreshold: 399},
	}}
	svc := NewAlertService(prefs, notifier, quietLogger())

	listing := &model.Listing{Model: "RX 6800 XT", Price: 400}
	if err := svc.HandleListingCreated(context.Background(), event.Event{Topic: event.TopicListingCreated, Payload: listing}); err != nil {
		t.Fatalf("HandleListingCreated: %v", err)
	}
	if len(notifier.got) != 1 || notifier.got[0] != "7:RX 6800 XT:400" {
		t.Errorf("notifications: got %v", notifier.got)
	}
}

func TestAlertErrors(t *testing.T) {
	svc := NewAlertService(&memPrefs{err: errors.New("db down")}, &recordingNotifier{}, quietLogger())
	ctx := context.Background()

	if err := svc.HandleListingCreated(ctx, event.Event{Payload: "not a listing"}); err == nil {
		t.Error("wrong payload type should fail")
	}
	if err := svc.HandleListingCreated(ctx, event.Event{Payload: &model.Listing{Model: "3080", Price: 1}}); err == nil {
		t.Error("preference lookup failure should be reported to the bus")
	}
}
