package events

import (
	"testing"
)

func TestSubscribeDeliversOnlyMatchingType(t *testing.T) {
	b := New()
	var gotAnalysis, gotOrder int
	b.Subscribe(EventAnalysisCompleted, func(Event) { gotAnalysis++ })
	b.Subscribe(EventOrderFilled, func(Event) { gotOrder++ })

	b.Publish(Event{Type: EventAnalysisCompleted})
	b.Publish(Event{Type: EventAnalysisCompleted})
	b.Publish(Event{Type: EventOrderFilled})

	if gotAnalysis != 2 {
		t.Errorf("gotAnalysis = %d, want 2", gotAnalysis)
	}
	if gotOrder != 1 {
		t.Errorf("gotOrder = %d, want 1", gotOrder)
	}
}

func TestSubscribeAllDeliversEveryType(t *testing.T) {
	b := New()
	var all []EventType
	b.SubscribeAll(func(e Event) { all = append(all, e.Type) })

	b.Publish(Event{Type: EventAnalysisStarted})
	b.Publish(Event{Type: EventOrderFailed})
	b.Publish(Event{Type: EventNotifierOverflow})

	want := []EventType{EventAnalysisStarted, EventOrderFailed, EventNotifierOverflow}
	if len(all) != len(want) {
		t.Fatalf("all = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("all[%d] = %s, want %s", i, all[i], want[i])
		}
	}
}

func TestPublishFillsTimestampWhenZero(t *testing.T) {
	b := New()
	var got Event
	b.Subscribe(EventPlanProduced, func(e Event) { got = e })
	b.Publish(Event{Type: EventPlanProduced})

	if got.Timestamp.IsZero() {
		t.Error("Publish left Timestamp zero")
	}
}

func TestPublishDeliversSynchronouslyInOrder(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe(EventOrderSubmitted, func(Event) { order = append(order, i) })
	}
	b.Publish(Event{Type: EventOrderSubmitted})

	if len(order) != 5 {
		t.Fatalf("len(order) = %d right after Publish, want 5 (synchronous delivery)", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want subscribers invoked in registration order", order)
		}
	}
}
