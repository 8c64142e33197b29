package idempotency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReplaysCachedResponse(t *testing.T) {
	c := New(time.Minute)
	var calls int32

	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "resp", nil
	}

	first, err := c.Do("enqueue", "req-1", fn)
	require.NoError(t, err)
	second, err := c.Do("enqueue", "req-1", fn)
	require.NoError(t, err)

	assert.Equal(t, "resp", first)
	assert.Equal(t, "resp", second)
	assert.Equal(t, int32(1), calls, "second call must replay, not re-execute")
}

func TestDoScopesByOperation(t *testing.T) {
	c := New(time.Minute)
	var calls int32

	fn := func() (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, err := c.Do("skip", "req-1", fn)
	require.NoError(t, err)
	_, err = c.Do("stop", "req-1", fn)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls, "same requestId under different ops must not collide")
}

func TestDoEmptyRequestIDBypasses(t *testing.T) {
	c := New(time.Minute)
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := c.Do("pause", "", func() (any, error) {
			return atomic.AddInt32(&calls, 1), nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 0, c.Len())
}

func TestDoConcurrentDuplicatesExecuteOnce(t *testing.T) {
	c := New(time.Minute)
	var calls int32

	const n = 16
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Do("enqueue", "burst", func() (any, error) {
				time.Sleep(10 * time.Millisecond)
				return atomic.AddInt32(&calls, 1), nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "concurrent duplicates must share one execution")
	for _, v := range results {
		assert.Equal(t, int32(1), v)
	}
}

func TestDoErrorsAreNotCached(t *testing.T) {
	c := New(time.Minute)
	var calls int32

	boom := errors.New("boom")
	_, err := c.Do("join", "req-err", func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := c.Do("join", "req-err", func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls, "a failed execution must not poison the key")
}

func TestEntriesExpire(t *testing.T) {
	c := New(50 * time.Millisecond)
	var calls int32

	fn := func() (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, err := c.Do("volume", "req-ttl", fn)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	v, err := c.Do("volume", "req-ttl", fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v, "expired entry must re-execute")
}
