package ratelimit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_CheckAndDebit(t *testing.T) {
	b := NewBucket(5, 1)
	ok, _ := b.Check(5)
	assert.True(t, ok)
	b.Debit(5)

	ok, retryAfter := b.Check(1)
	assert.False(t, ok)
	assert.Greater(t, retryAfter.Nanoseconds(), int64(0))
}

// TestBucket_ConcurrentDebitNeverLosesOrDoublesAnUpdate is §8.1 law 5: no
// double-debit, no loss — concurrent Debit calls on the same bucket, each
// CAS-looping until it wins, never clobber each other's subtraction. With no
// refill in play, N one-token debits against a large-enough bucket must land
// the balance at exactly capacity-N.
func TestBucket_ConcurrentDebitNeverLosesOrDoublesAnUpdate(t *testing.T) {
	const n = 200
	b := NewBucket(10_000, 0) // capacity far above n so nothing clamps at zero
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Debit(1)
		}()
	}
	wg.Wait()

	ok, _ := b.Check(10_000 - n)
	assert.True(t, ok, "expected exactly %d tokens debited, balance higher than expected", n)
	ok, _ = b.Check(10_000 - n + 1)
	assert.False(t, ok, "expected exactly %d tokens debited, balance lower than expected", n)
}

func TestStore_ConfigureAndLookup(t *testing.T) {
	store := NewStore()
	key := Key{Model: "gpt-4o-mini"}
	store.Configure(key, 10, 1)

	bucket, ok := store.Lookup(key)
	require.True(t, ok)
	require.NotNil(t, bucket)

	_, ok = store.Lookup(Key{Model: "unconfigured"})
	assert.False(t, ok)
}

func TestStore_BucketsReturnsAggregateAndSelector(t *testing.T) {
	store := NewStore()
	store.Configure(Key{Model: "gpt-4o-mini"}, 10, 1)
	store.Configure(Key{Model: "gpt-4o-mini", Selector: "tenant-a"}, 3, 1)

	buckets := store.Buckets("gpt-4o-mini", "tenant-a")
	assert.Len(t, buckets, 2)

	buckets = store.Buckets("gpt-4o-mini", "")
	assert.Len(t, buckets, 1)

	buckets = store.Buckets("gpt-4o-mini", "tenant-b")
	assert.Len(t, buckets, 1)
}
