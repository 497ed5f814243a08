package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"shop-admin/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendEvent(t *testing.T, repo OutboxRepository, name string) *domain.Event {
	t.Helper()
	ev := &domain.Event{
		Channel:         domain.ChannelProducts,
		Name:            name,
		Payload:         []byte(`{"productId":"PRD-001"}`),
		ExcludeSocketID: "socket-1",
	}
	require.NoError(t, repo.Append(context.Background(), ev))
	return ev
}

func TestOutboxRepository_ClaimAndMark(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Outbox

	ev := appendEvent(t, repo, domain.EventProductCreated)
	assert.NotZero(t, ev.ID)

	claimed, err := repo.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ev.ID, claimed[0].ID)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, "socket-1", claimed[0].ExcludeSocketID)
	assert.JSONEq(t, `{"productId":"PRD-001"}`, string(claimed[0].Payload))

	// leased rows are invisible to other claimers
	again, err := repo.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.MarkPublished(ctx, ev.ID))
	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	pruned, err := repo.PruneDelivered(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}

func TestOutboxRepository_RetryAndFail(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Outbox

	ev := appendEvent(t, repo, domain.EventProductDeleted)

	_, err := repo.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.MarkRetry(ctx, ev.ID, errors.New("broker down"), time.Now().Add(-time.Second)))

	claimed, err := repo.ClaimBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
	require.NotNil(t, claimed[0].LastError)
	assert.Equal(t, "broker down", *claimed[0].LastError)

	require.NoError(t, repo.MarkFailed(ctx, ev.ID, errors.New("gave up")))
	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// failed rows are kept for inspection
	pruned, err := repo.PruneDelivered(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestOutboxRepository_ConcurrentClaimsDoNotOverlap(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Outbox

	for i := 0; i < 20; i++ {
		appendEvent(t, repo, domain.EventProductUpdated)
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := repo.ClaimBatch(ctx, 3, time.Minute)
				if err != nil || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, ev := range batch {
					seen[ev.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %d claimed more than once", id)
	}
}
