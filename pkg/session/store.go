package session

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TryMightyAI/decoy/pkg/httputil"
	"github.com/TryMightyAI/decoy/pkg/intel"
)

const (
	keyPrefix = "session:"

	// lockStripes bounds memory for per-key serialization. Conversations
	// hash onto stripes; two ids on the same stripe contend, ids on
	// different stripes proceed independently.
	lockStripes = 64

	// mirrorTimeout bounds each durable-tier write. Mirror writes run on
	// their own context - they must never inherit request cancellation.
	mirrorTimeout = 5 * time.Second

	defaultTTL = time.Hour
)

// Archiver receives best-effort mirrored writes for audit/analytics and is
// consulted on fast-tier misses so an expired conversation is reconstructed
// rather than restarted. Implementations must tolerate duplicate calls.
type Archiver interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	AppendMessage(ctx context.Context, sessionID string, turn Turn) error
	SaveSnapshot(ctx context.Context, conv *Conversation) error
	MarkCompleted(ctx context.Context, sessionID string) error
	LoadConversation(ctx context.Context, sessionID string) (*Conversation, error)
}

// Store is the two-tier session store. The fast tier (redis, sliding TTL) is
// the authoritative working copy; the durable tier receives asynchronous
// best-effort mirrors. Without a redis client the store degrades to
// process-local storage - correct for a single instance only, which is why
// the degradation is logged loudly at startup rather than hidden.
type Store struct {
	rdb       *redis.Client // nil when degraded to process-local mode
	ttl       time.Duration
	archiver  Archiver
	mirrorSem *httputil.Semaphore
	mirrorWG  sync.WaitGroup

	locks [lockStripes]sync.Mutex

	localMu sync.RWMutex
	local   map[string]*Conversation
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithRedis attaches the fast tier. Callers should ping the client first and
// omit this option when redis is unreachable.
func WithRedis(rdb *redis.Client) Option {
	return func(s *Store) { s.rdb = rdb }
}

// WithTTL sets the fast tier's sliding expiry, refreshed on every write.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithArchiver attaches the durable tier mirror.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithMirrorConcurrency bounds in-flight durable mirror writes.
func WithMirrorConcurrency(n int) Option {
	return func(s *Store) { s.mirrorSem = httputil.NewSemaphore(n) }
}

// New creates a Store. With no options it is a process-local, memory-only
// store with a one hour TTL semantic left to the caller.
func New(opts ...Option) *Store {
	s := &Store{
		ttl:       defaultTTL,
		local:     make(map[string]*Conversation),
		mirrorSem: httputil.NewSemaphore(64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FastTierEnabled reports whether redis backs the working copies.
func (s *Store) FastTierEnabled() bool {
	return s.rdb != nil
}

// lockFor returns the stripe mutex serializing updates for one id.
func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// Get returns a snapshot of the conversation, or nil if it does not exist in
// either tier. Not found is not an error.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	return s.load(ctx, id)
}

// ApplyTurn appends a turn, creating the conversation on first sight.
// Language and channel are first-write-wins: they stick from the creating
// call and later values are ignored. Returns the updated conversation.
func (s *Store) ApplyTurn(ctx context.Context, id string, turn Turn, lang, channel string) (*Conversation, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	created := false
	if conv == nil {
		now := time.Now().UTC()
		conv = &Conversation{
			ID:        id,
			Language:  lang,
			Channel:   channel,
			Status:    StatusActive,
			CreatedAt: now,
			Evidence:  intel.Merge(intel.Evidence{}, intel.Evidence{}),
		}
		created = true
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	conv.History = append(conv.History, turn)

	if err := s.persist(ctx, conv); err != nil {
		return nil, err
	}

	if created {
		snapshot := conv.clone()
		s.mirror("create", func(ctx context.Context) error {
			return s.archiver.CreateConversation(ctx, snapshot)
		})
	}
	s.mirror("append", func(ctx context.Context) error {
		return s.archiver.AppendMessage(ctx, id, turn)
	})

	return conv, nil
}

// ApplyEvidence merges newly extracted evidence into the stored evidence and
// persists the result. Merging is idempotent, so re-applying the same
// extraction is harmless. Returns the merged evidence.
func (s *Store) ApplyEvidence(ctx context.Context, id string, ev intel.Evidence) (intel.Evidence, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.load(ctx, id)
	if err != nil {
		return intel.Evidence{}, err
	}
	if conv == nil {
		return intel.Evidence{}, fmt.Errorf("apply evidence: unknown session %s", id)
	}

	conv.Evidence = intel.Merge(conv.Evidence, ev)
	if err := s.persist(ctx, conv); err != nil {
		return intel.Evidence{}, err
	}

	snapshot := conv.clone()
	s.mirror("snapshot", func(ctx context.Context) error {
		return s.archiver.SaveSnapshot(ctx, snapshot)
	})

	return conv.Evidence, nil
}

// SetScamFlagged marks the conversation as a confirmed scam. The flag only
// ever transitions false->true; repeated calls are no-ops.
func (s *Store) SetScamFlagged(ctx context.Context, id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("flag scam: unknown session %s", id)
	}
	if conv.ScamFlagged {
		return nil
	}

	conv.ScamFlagged = true
	if err := s.persist(ctx, conv); err != nil {
		return err
	}

	snapshot := conv.clone()
	s.mirror("snapshot", func(ctx context.Context) error {
		return s.archiver.SaveSnapshot(ctx, snapshot)
	})
	return nil
}

// MarkNotified flips NotificationSent false->true and reports whether this
// caller performed the transition. Exactly one caller wins per conversation,
// which is what makes the evaluation callback at-most-once.
func (s *Store) MarkNotified(ctx context.Context, id string) (bool, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if conv == nil || conv.NotificationSent {
		return false, nil
	}

	conv.NotificationSent = true
	if err := s.persist(ctx, conv); err != nil {
		return false, err
	}

	snapshot := conv.clone()
	s.mirror("snapshot", func(ctx context.Context) error {
		return s.archiver.SaveSnapshot(ctx, snapshot)
	})
	return true, nil
}

// Delete removes the fast-tier copy and marks the durable record completed.
// History in the durable tier is retained. Idempotent: deleting an unknown
// id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
			return fmt.Errorf("fast tier delete %s: %w", id, err)
		}
	} else {
		s.localMu.Lock()
		delete(s.local, id)
		s.localMu.Unlock()
	}

	s.mirror("complete", func(ctx context.Context) error {
		return s.archiver.MarkCompleted(ctx, id)
	})
	return nil
}

// Close waits for in-flight durable mirror writes to finish.
func (s *Store) Close() {
	s.mirrorWG.Wait()
}

// load returns the working copy for id. On a fast-tier miss it consults the
// durable tier: an expired-but-archived conversation is reconstructed and
// written back, not treated as brand new.
func (s *Store) load(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.fetch(ctx, id)
	if err != nil || conv != nil {
		return conv, err
	}

	if s.archiver == nil {
		return nil, nil
	}
	conv, err = s.archiver.LoadConversation(ctx, id)
	if err != nil {
		// Degrade to a fresh conversation rather than failing the turn.
		log.Printf("[STORE] durable lookup for %s failed: %v", id, err)
		return nil, nil
	}
	if conv == nil || conv.Status != StatusActive {
		return nil, nil
	}

	if err := s.persist(ctx, conv); err != nil {
		return nil, err
	}
	log.Printf("[STORE] session %s reconstructed from durable tier (%d messages)", id, conv.MessageCount())
	return conv, nil
}

// fetch reads the fast tier (or the local fallback) without any durable
// lookup. Returns nil, nil on a miss.
func (s *Store) fetch(ctx context.Context, id string) (*Conversation, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fast tier get %s: %w", id, err)
		}
		var conv Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		return &conv, nil
	}

	s.localMu.RLock()
	defer s.localMu.RUnlock()
	if conv, ok := s.local[id]; ok {
		return conv.clone(), nil
	}
	return nil, nil
}

// persist writes the working copy back, refreshing the sliding TTL.
func (s *Store) persist(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()

	if s.rdb != nil {
		raw, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", conv.ID, err)
		}
		if err := s.rdb.Set(ctx, keyPrefix+conv.ID, raw, s.ttl).Err(); err != nil {
			return fmt.Errorf("fast tier set %s: %w", conv.ID, err)
		}
		return nil
	}

	s.localMu.Lock()
	s.local[conv.ID] = conv.clone()
	s.localMu.Unlock()
	return nil
}

// mirror runs one durable-tier write asynchronously, bounded by the mirror
// semaphore and a fixed timeout detached from the request context. Failures
// are logged and never surface on the request path.
func (s *Store) mirror(op string, fn func(ctx context.Context) error) {
	if s.archiver == nil {
		return
	}
	if !s.mirrorSem.TryAcquire() {
		log.Printf("[STORE] durable mirror saturated, dropping %s (total dropped: %d)", op, s.mirrorSem.DroppedCount())
		return
	}

	s.mirrorWG.Add(1)
	go func() {
		defer s.mirrorWG.Done()
		defer s.mirrorSem.Release()

		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("[STORE] durable mirror %s failed: %v", op, err)
		}
	}()
}
