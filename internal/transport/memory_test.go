package transport

import (
	"context"
	"testing"
)

func TestAppendDeliversToSubscriber(t *testing.T) {
	m := NewMemoryLog()

	var got []Entry
	unsub, err := m.Subscribe("conv1", func(_ string, e Entry) {
		got = append(got, e)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	id, err := m.Append(context.Background(), "conv1", Entry{Content: "hi", Timestamp: 100})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("Append returned empty remote id")
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("delivered = %+v, want one entry", got)
	}
}

func TestSubscribeReplaysExistingEntries(t *testing.T) {
	m := NewMemoryLog()
	for _, c := range []string{"a", "b", "c"} {
		if _, err := m.Append(context.Background(), "conv1", Entry{Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	unsub, err := m.Subscribe("conv1", func(_ string, e Entry) {
		got = append(got, e.Content)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("replay = %v, want [a b c]", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMemoryLog()

	count := 0
	unsub, err := m.Subscribe("conv1", func(string, Entry) { count++ })
	if err != nil {
		t.Fatal(err)
	}
	unsub()

	if _, err := m.Append(context.Background(), "conv1", Entry{Content: "x"}); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("handler called %d times after unsubscribe, want 0", count)
	}
}

func TestLogsAreIsolatedByKey(t *testing.T) {
	m := NewMemoryLog()

	var got []string
	unsub, err := m.Subscribe("conv1", func(_ string, e Entry) { got = append(got, e.Content) })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if _, err := m.Append(context.Background(), "conv2", Entry{Content: "other"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("received %v from a different log", got)
	}
}
