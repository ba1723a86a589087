package eventbus

import "testing"

func TestPublishFansOutAndStampsTime(t *testing.T) {
	b := New()
	a, unA := b.Subscribe(4)
	c, unC := b.Subscribe(4)
	defer unA()
	defer unC()

	b.Publish(Event{Type: PostDelivered, Mode: "best"})

	for i, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != PostDelivered || e.Mode != "best" {
			t.Fatalf("sub %d: unexpected event %+v", i, e)
		}
		if e.Time.IsZero() {
			t.Fatalf("sub %d: time not stamped", i)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: SessionStarted})
	b.Publish(Event{Type: SessionFinished}) // dropped, must not block

	if e := <-ch; e.Type != SessionStarted {
		t.Fatalf("got %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndPublishSurvives(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(Event{Type: PostFailed})
}
