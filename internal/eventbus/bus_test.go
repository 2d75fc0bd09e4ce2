package eventbus

import (
	"testing"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ReminderSent, Data: int64(4)})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != ReminderSent || e.Data != int64(4) || e.Time.IsZero() {
				t.Fatalf("sub %d got %+v", i, e)
			}
		default:
			t.Fatalf("sub %d got nothing", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	if e := <-ch; e.Type != "a" {
		t.Fatalf("first=%q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: PassFinished})
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}
