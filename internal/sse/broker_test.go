package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/dirstore/internal/models"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("alice_fs")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("alice_fs")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "entry.created", Partition: "alice_fs", Data: map[string]string{"path": "/a.txt"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: entry.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"/a.txt"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestEventsStayInsidePartition(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	alice := b.Subscribe("alice_fs")
	defer b.Unsubscribe(alice)
	bob := b.Subscribe("bob_fs")
	defer b.Unsubscribe(bob)

	b.Notify(models.Event{Kind: models.EventFileCreated, Partition: "alice_fs", Path: "/secret"})

	select {
	case <-alice:
	case <-time.After(time.Second):
		t.Fatal("alice did not receive her own event")
	}
	time.Sleep(50 * time.Millisecond)
	select {
	case msg := <-bob:
		t.Fatalf("bob received %q", msg)
	default:
	}
}

func drain(ch chan []byte) (changes, trees int) {
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), TreeUpdated) {
				trees++
			} else {
				changes++
			}
		default:
			return changes, trees
		}
	}
}

func TestNotifyTreeThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	alice := b.Subscribe("alice_fs")
	defer b.Unsubscribe(alice)
	bob := b.Subscribe("bob_fs")
	defer b.Unsubscribe(bob)

	b.Notify(models.Event{Kind: models.EventFileCreated, Partition: "alice_fs", Path: "/a"})
	b.Notify(models.Event{Kind: models.EventFileDeleted, Partition: "alice_fs", Path: "/b"})
	// Throttling is per partition: bob's first change still triggers.
	b.Notify(models.Event{Kind: models.EventDirCreated, Partition: "bob_fs", Path: "/d/"})

	time.Sleep(50 * time.Millisecond)
	if changes, trees := drain(alice); changes != 2 || trees != 1 {
		t.Errorf("alice changes=%d trees=%d, want 2 and 1", changes, trees)
	}
	if changes, trees := drain(bob); changes != 1 || trees != 1 {
		t.Errorf("bob changes=%d trees=%d, want 1 and 1", changes, trees)
	}
}

func TestHandlerStreamsPartition(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h := b.Handler(func(*http.Request) string { return "alice_fs" })

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Notify(models.Event{Kind: models.EventFileMoved, Partition: "alice_fs", Path: "/x", Target: "/y"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: entry.moved") || !strings.Contains(body, `"target":"/y"`) {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestHandlerRejectsAnonymous(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	w := httptest.NewRecorder()
	b.Handler(func(*http.Request) string { return "" }).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("alice_fs")
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Partition: "alice_fs", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("alice_fs")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "entry.created", Partition: "alice_fs"})
	b.Notify(models.Event{Kind: models.EventFileCreated, Partition: "alice_fs"})
}
