package transmission

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
)

// IdempotencyStore remembers which job currently owns a document's
// transmission. Begin is first-writer-wins; re-enqueueing an owned document
// returns the existing job instead of creating a second submission.
type IdempotencyStore interface {
	// Begin claims the document for jobID. When the document is already
	// claimed, the existing owner is returned and created is false.
	Begin(ctx context.Context, docID id.DocumentID, jobID id.JobID, ttl time.Duration) (owner id.JobID, created bool, err error)
	// Clear releases the claim once the document reached a terminal state.
	Clear(ctx context.Context, docID id.DocumentID) error
}

const idempotencyPrefix = "transmission:doc:"

// RedisIdempotencyStore implements the claim with SET NX so concurrent
// enqueues across instances agree on a single owner.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, docID id.DocumentID, jobID id.JobID, ttl time.Duration) (id.JobID, bool, error) {
	key := idempotencyPrefix + docID.String()
	ok, err := s.client.SetNX(ctx, key, jobID.String(), ttl).Result()
	if err != nil {
		return id.JobID{}, false, err
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := s.client.Get(ctx, key).Result()
	if err != nil {
		// Claim expired between SetNX and Get; treat the enqueue as new.
		if err == redis.Nil {
			return s.Begin(ctx, docID, jobID, ttl)
		}
		return id.JobID{}, false, err
	}
	owner, err := id.ParseJobID(existing)
	if err != nil {
		return id.JobID{}, false, err
	}
	return owner, false, nil
}

func (s *RedisIdempotencyStore) Clear(ctx context.Context, docID id.DocumentID) error {
	return s.client.Del(ctx, idempotencyPrefix+docID.String()).Err()
}

// InMemoryIdempotencyStore backs tests and single-instance deployments.
type InMemoryIdempotencyStore struct {
	mu     sync.Mutex
	owners map[id.DocumentID]memClaim
	now    func() time.Time
}

type memClaim struct {
	owner   id.JobID
	expires time.Time
}

func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{owners: make(map[id.DocumentID]memClaim), now: time.Now}
}

func (s *InMemoryIdempotencyStore) Begin(_ context.Context, docID id.DocumentID, jobID id.JobID, ttl time.Duration) (id.JobID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claim, ok := s.owners[docID]; ok && s.now().Before(claim.expires) {
		return claim.owner, false, nil
	}
	s.owners[docID] = memClaim{owner: jobID, expires: s.now().Add(ttl)}
	return jobID, true, nil
}

func (s *InMemoryIdempotencyStore) Clear(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, docID)
	return nil
}
