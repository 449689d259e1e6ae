package main

import (
	"testing"
	"time"
)

// TestWorkbaseFeed_LatestEmptyBeforePublish checks Latest reports absent
// until the first Publish.
func TestWorkbaseFeed_LatestEmptyBeforePublish(t *testing.T) {
	f := NewWorkbaseFeed()
	if _, ok := f.Latest(); ok {
		t.Fatalf("expected Latest to report absent before any Publish")
	}
}

// TestWorkbaseFeed_SubscribeWakesOnPublish checks a subscriber's wait
// channel closes when a new value is published.
func TestWorkbaseFeed_SubscribeWakesOnPublish(t *testing.T) {
	f := NewWorkbaseFeed()
	_, waitCh := f.Subscribe()

	wb := &fakeWorkbase{}
	go f.Publish(wb)

	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatalf("subscriber was not woken within 1s of Publish")
	}

	got, ok := f.Latest()
	if !ok || got != Workbase(wb) {
		t.Fatalf("Latest after Publish = %v, %v; want the published value", got, ok)
	}
}

// TestWorkbaseFeed_SlowReaderMissesIntermediateUpdates checks that a
// reader which doesn't resubscribe between publishes only ever observes
// the latest value, never queues the skipped ones.
func TestWorkbaseFeed_SlowReaderMissesIntermediateUpdates(t *testing.T) {
	f := NewWorkbaseFeed()
	first := &fakeWorkbase{}
	second := &fakeWorkbase{clean: true}

	f.Publish(first)
	_, waitCh := f.Subscribe()
	f.Publish(second)

	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatalf("subscriber was not woken")
	}

	got, _ := f.Latest()
	if got != Workbase(second) {
		t.Fatalf("expected the reader to observe only the latest published value")
	}
}
