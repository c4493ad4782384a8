package bus

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBroadcast(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Conn()
	b := hub.Conn()
	pub := hub.Conn()

	var gotA, gotB []string
	if err := a.Subscribe("ch", func(_ string, payload []byte) {
		gotA = append(gotA, string(payload))
	}); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe("ch", func(_ string, payload []byte) {
		gotB = append(gotB, string(payload))
	}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	pub.Publish(ctx, "ch", []byte("one"))
	pub.Publish(ctx, "ch", []byte("two"))
	pub.Publish(ctx, "other", []byte("elsewhere"))

	want := []string{"one", "two"}
	for name, got := range map[string][]string{"a": gotA, "b": gotB} {
		if len(got) != len(want) {
			t.Fatalf("%s received %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %q, want %q (order preserved)", name, i, got[i], want[i])
			}
		}
	}
}

func TestMemoryPublisherHearsOwnChannel(t *testing.T) {
	hub := NewMemoryHub()
	conn := hub.Conn()

	var got int
	conn.Subscribe("ch", func(string, []byte) { got++ })
	conn.Publish(context.Background(), "ch", []byte("x"))

	if got != 1 {
		t.Errorf("deliveries = %d, want 1 (same connection both publishes and subscribes)", got)
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	hub := NewMemoryHub()
	conn := hub.Conn()

	conn.Subscribe("ch", func(string, []byte) {})
	if err := conn.Unsubscribe("ch"); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if err := conn.Unsubscribe("ch"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("second Unsubscribe() = %v, want ErrNotSubscribed", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	hub := NewMemoryHub()
	conn := hub.Conn()
	other := hub.Conn()

	var delivered int
	conn.Subscribe("ch", func(string, []byte) { delivered++ })
	conn.Close()

	if err := conn.Publish(context.Background(), "ch", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after close = %v, want ErrClosed", err)
	}
	if err := conn.Subscribe("ch", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after close = %v, want ErrClosed", err)
	}

	// A closed connection no longer receives broadcasts.
	other.Publish(context.Background(), "ch", []byte("x"))
	if delivered != 0 {
		t.Errorf("deliveries after close = %d, want 0", delivered)
	}
}
