package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vincentagber/real-estate-crm/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	payload := domain.SessionPayload{
		UserID:      "user-1",
		Username:    "jsmith",
		DisplayName: "Jane Smith",
		AccountType: domain.AccountTypeAgent,
	}
	id := NewID()
	if err := store.Start(context.Background(), id, payload); err != nil {
		t.Fatalf("start session: %v", err)
	}

	got, err := store.Read(context.Background(), id)
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	if got != payload {
		t.Fatalf("payload mismatch: got %+v want %+v", got, payload)
	}
}

func TestMemoryStoreDestroy(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	id := NewID()
	if err := store.Start(context.Background(), id, domain.SessionPayload{UserID: "u"}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := store.Destroy(context.Background(), id); err != nil {
		t.Fatalf("destroy session: %v", err)
	}
	if _, err := store.Read(context.Background(), id); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after destroy, got %v", err)
	}
}

func TestMemoryStoreUnknownID(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	if _, err := store.Read(context.Background(), NewID()); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()

	id := NewID()
	if err := store.Start(context.Background(), id, domain.SessionPayload{UserID: "u"}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := store.Read(context.Background(), id); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestMemoryStoreConcurrentSessions(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := NewID()
			ids[i] = id
			payload := domain.SessionPayload{UserID: "user-1", Username: "jsmith"}
			if err := store.Start(context.Background(), id, payload); err != nil {
				t.Errorf("start session %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
		if _, err := store.Read(context.Background(), id); err != nil {
			t.Fatalf("read session %s: %v", id, err)
		}
	}
}
