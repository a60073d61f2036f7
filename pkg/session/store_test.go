package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/TryMightyAI/decoy/pkg/intel"
)

func newRedisStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	opts = append([]Option{WithRedis(rdb), WithTTL(time.Minute)}, opts...)
	return New(opts...), mr
}

// fakeArchiver records mirror traffic and serves canned durable lookups.
type fakeArchiver struct {
	mu        sync.Mutex
	created   int
	appended  int
	snapshots int
	completed int
	stored    map[string]*Conversation
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{stored: make(map[string]*Conversation)}
}

func (f *fakeArchiver) CreateConversation(_ context.Context, conv *Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.stored[conv.ID] = conv
	return nil
}

func (f *fakeArchiver) AppendMessage(_ context.Context, _ string, _ Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended++
	return nil
}

func (f *fakeArchiver) SaveSnapshot(_ context.Context, conv *Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	f.stored[conv.ID] = conv
	return nil
}

func (f *fakeArchiver) MarkCompleted(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return nil
}

func (f *fakeArchiver) LoadConversation(_ context.Context, id string) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.stored[id]; ok {
		return conv, nil
	}
	return nil, nil
}

func (f *fakeArchiver) counts() (created, appended, snapshots, completed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.appended, f.snapshots, f.completed
}

func scammerTurn(text string) Turn {
	return Turn{Sender: SenderScammer, Text: text, Timestamp: time.Now().UTC()}
}

func TestApplyTurnCreatesConversation(t *testing.T) {
	modes := map[string]func(t *testing.T) *Store{
		"redis": func(t *testing.T) *Store { s, _ := newRedisStore(t); return s },
		"local": func(t *testing.T) *Store { return New() },
	}

	for name, build := range modes {
		t.Run(name, func(t *testing.T) {
			store := build(t)
			ctx := context.Background()

			conv, err := store.ApplyTurn(ctx, "sess-1", scammerTurn("hello"), "Hindi", "SMS")
			if err != nil {
				t.Fatalf("ApplyTurn: %v", err)
			}
			if conv.MessageCount() != 1 || conv.Language != "Hindi" || conv.Channel != "SMS" {
				t.Errorf("unexpected conversation: %+v", conv)
			}
			if conv.Status != StatusActive {
				t.Errorf("Status = %v, want active", conv.Status)
			}

			// Language and channel stick from the creating call.
			conv, err = store.ApplyTurn(ctx, "sess-1", scammerTurn("again"), "Tamil", "Email")
			if err != nil {
				t.Fatalf("ApplyTurn: %v", err)
			}
			if conv.Language != "Hindi" || conv.Channel != "SMS" {
				t.Errorf("language/channel not first-write-wins: %+v", conv)
			}
			if conv.MessageCount() != 2 {
				t.Errorf("MessageCount = %d, want 2", conv.MessageCount())
			}
		})
	}
}

func TestApplyTurnConcurrent(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyTurn(ctx, "busy", scammerTurn("msg"), "English", "Chat"); err != nil {
				t.Errorf("ApplyTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	conv, err := store.Get(ctx, "busy")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.MessageCount() != n {
		t.Errorf("MessageCount = %d, want %d (lost updates)", conv.MessageCount(), n)
	}
}

func TestMarkNotifiedExactlyOnce(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.ApplyTurn(ctx, "race", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	var winners sync.Map
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := store.MarkNotified(ctx, "race")
			if err != nil {
				t.Errorf("MarkNotified: %v", err)
				return
			}
			if won {
				winners.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	winners.Range(func(_, _ any) bool { count++; return true })
	if count != 1 {
		t.Errorf("winners = %d, want exactly 1", count)
	}

	conv, err := store.Get(ctx, "race")
	if err != nil {
		t.Fatal(err)
	}
	if !conv.NotificationSent {
		t.Error("NotificationSent not persisted")
	}

	if won, _ := store.MarkNotified(ctx, "race"); won {
		t.Error("MarkNotified won twice for the same session")
	}
	if won, _ := store.MarkNotified(ctx, "never-seen"); won {
		t.Error("MarkNotified won for an unknown session")
	}
}

func TestSetScamFlagged(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.SetScamFlagged(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown session")
	}

	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetScamFlagged(ctx, "s1"); err != nil {
		t.Fatalf("SetScamFlagged: %v", err)
	}
	if err := store.SetScamFlagged(ctx, "s1"); err != nil {
		t.Fatalf("repeated SetScamFlagged: %v", err)
	}

	conv, _ := store.Get(ctx, "s1")
	if !conv.ScamFlagged {
		t.Error("ScamFlagged not persisted")
	}
}

func TestApplyEvidenceMerges(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.ApplyEvidence(ctx, "ghost", intel.Evidence{}); err == nil {
		t.Error("expected error for unknown session")
	}

	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}

	first := intel.Evidence{PhoneNumbers: []string{"9876543210"}}
	merged, err := store.ApplyEvidence(ctx, "s1", first)
	if err != nil {
		t.Fatalf("ApplyEvidence: %v", err)
	}
	if len(merged.PhoneNumbers) != 1 {
		t.Errorf("PhoneNumbers = %v", merged.PhoneNumbers)
	}

	// Re-applying the same extraction must not grow the set.
	merged, err = store.ApplyEvidence(ctx, "s1", first)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.PhoneNumbers) != 1 {
		t.Errorf("re-applied evidence grew the set: %v", merged.PhoneNumbers)
	}

	merged, err = store.ApplyEvidence(ctx, "s1", intel.Evidence{UPIDs: []string{"fraud@ybl"}})
	if err != nil {
		t.Fatal(err)
	}
	if merged.Count() != 2 {
		t.Errorf("Count = %d after second identifier, want 2", merged.Count())
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}

	conv, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if conv != nil {
		t.Errorf("conversation survived delete: %+v", conv)
	}
}

func TestGetMissIsNotError(t *testing.T) {
	store, _ := newRedisStore(t)
	conv, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv != nil {
		t.Errorf("expected nil for unknown session, got %+v", conv)
	}
}

func TestDurableReconstruction(t *testing.T) {
	arch := newFakeArchiver()
	arch.stored["expired"] = &Conversation{
		ID:       "expired",
		History:  []Turn{scammerTurn("old 1"), scammerTurn("old 2")},
		Evidence: intel.Evidence{PhoneNumbers: []string{"9876543210"}},
		Language: "Hindi",
		Status:   StatusActive,
	}
	arch.stored["closed"] = &Conversation{ID: "closed", Status: StatusCompleted}

	store, mr := newRedisStore(t, WithArchiver(arch))
	ctx := context.Background()

	conv, err := store.Get(ctx, "expired")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv == nil {
		t.Fatal("expired session not reconstructed from durable tier")
	}
	if conv.MessageCount() != 2 || conv.Language != "Hindi" {
		t.Errorf("reconstructed conversation wrong: %+v", conv)
	}
	if !mr.Exists(keyPrefix + "expired") {
		t.Error("reconstructed session not written back to fast tier")
	}

	// A new turn continues the old history instead of starting over.
	conv, err = store.ApplyTurn(ctx, "expired", scammerTurn("back again"), "English", "SMS")
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount() != 3 {
		t.Errorf("MessageCount = %d, want 3 after reconstruction", conv.MessageCount())
	}

	// Completed durable records stay closed.
	conv, err = store.Get(ctx, "closed")
	if err != nil {
		t.Fatal(err)
	}
	if conv != nil {
		t.Errorf("completed session resurrected: %+v", conv)
	}
}

func TestMirrorWrites(t *testing.T) {
	arch := newFakeArchiver()
	store := New(WithArchiver(arch))
	ctx := context.Background()

	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ApplyEvidence(ctx, "s1", intel.Evidence{UPIDs: []string{"fraud@ybl"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	store.Close() // waits for async mirrors

	created, appended, snapshots, completed := arch.counts()
	if created != 1 || appended != 1 || snapshots != 1 || completed != 1 {
		t.Errorf("mirror counts = create:%d append:%d snapshot:%d complete:%d, want 1 each",
			created, appended, snapshots, completed)
	}
}

func TestSlidingTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("hi"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(keyPrefix + "s1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want %v", ttl, time.Minute)
	}

	// Any write refreshes the expiry.
	mr.FastForward(30 * time.Second)
	if _, err := store.ApplyTurn(ctx, "s1", scammerTurn("more"), "English", "SMS"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(keyPrefix + "s1"); ttl != time.Minute {
		t.Errorf("TTL after write = %v, want refreshed to %v", ttl, time.Minute)
	}
}
