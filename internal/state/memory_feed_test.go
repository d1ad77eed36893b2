package state

import (
	"context"
	"testing"
	"time"
)

func TestMemoryFeedPublishPollAck(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	events := []FeedEvent{
		{Kind: "slot_assigned", LineID: "line-a", ShiftType: ShiftDay, SlotIndex: 0, WorkerID: "w1"},
		{Kind: "session_opened", WorkerID: "w1", SessionID: "s1"},
	}
	for _, e := range events {
		if err := feed.Publish(ctx, e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	claims, err := feed.Poll(ctx, 10, "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claims))
	}
	if claims[0].Event.Kind != "slot_assigned" || claims[1].Event.Kind != "session_opened" {
		t.Fatalf("claims out of order: %+v", claims)
	}
	if claims[0].Event.At.IsZero() {
		t.Fatalf("publish should stamp the event time")
	}

	// Unacked claims stay invisible until their deadline.
	more, err := feed.Poll(ctx, 10, "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(more) != 0 {
		t.Fatalf("expected no visible events, got %d", len(more))
	}

	if err := feed.Ack(ctx, claims); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got, _ := feed.Poll(ctx, 10, "dashboard", time.Minute); len(got) != 0 {
		t.Fatalf("acked events must not be re-delivered, got %d", len(got))
	}
}

func TestMemoryFeedRedeliversExpiredClaims(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	if err := feed.Publish(ctx, FeedEvent{Kind: "slot_released", LineID: "line-a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	claims, err := feed.Poll(ctx, 1, "dash-1", time.Millisecond)
	if err != nil || len(claims) != 1 {
		t.Fatalf("first poll: claims=%d err=%v", len(claims), err)
	}
	time.Sleep(5 * time.Millisecond)

	again, err := feed.Poll(ctx, 1, "dash-2", time.Minute)
	if err != nil {
		t.Fatalf("redelivery poll: %v", err)
	}
	if len(again) != 1 || again[0].Event.Kind != "slot_released" {
		t.Fatalf("expected redelivery after visibility timeout, got %+v", again)
	}
	if again[0].Receipt == claims[0].Receipt {
		t.Fatalf("redelivered claim must carry a fresh receipt")
	}
}
