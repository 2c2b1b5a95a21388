package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "conv:l1:t1", ConversationKey("l1", "t1"))
}

func TestLocal_SerializesSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.size(), "idle entries are removed")
}

func TestLocal_DifferentKeysIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.size())
}

func TestLocal_HandoffAfterUnlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), "k")
		if err == nil {
			u()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestRedis_UnreachableServer(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewRedis(client, 0)
	assert.Equal(t, defaultTTL, r.ttl)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.Lock(ctx, ConversationKey("l1", "t1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotAcquired))
}

// memRedis is an in-memory stand-in for the few Redis commands the locker
// uses. Keys expire on the wall clock like real PX keys.
type memRedis struct {
	mu      sync.Mutex
	vals    map[string]string
	expires map[string]time.Time
	renews  int
}

func newMemRedis() *memRedis {
	return &memRedis{vals: map[string]string{}, expires: map[string]time.Time{}}
}

func (m *memRedis) live(key string) (string, bool) {
	v, ok := m.vals[key]
	if ok && time.Now().After(m.expires[key]) {
		delete(m.vals, key)
		delete(m.expires, key)
		return "", false
	}
	return v, ok
}

func (m *memRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return goredis.NewBoolResult(false, nil)
	}
	m.vals[key] = fmt.Sprint(value)
	m.expires[key] = time.Now().Add(ttl)
	return goredis.NewBoolResult(true, nil)
}

func (m *memRedis) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *goredis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.live(keys[0])
	if !ok || v != fmt.Sprint(args[0]) {
		return goredis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case releaseScript.Hash():
		delete(m.vals, keys[0])
		delete(m.expires, keys[0])
	case renewScript.Hash():
		m.renews++
		m.expires[keys[0]] = time.Now().Add(time.Duration(args[1].(int64)) * time.Millisecond)
	default:
		return goredis.NewCmdResult(nil, errors.New("NOSCRIPT unknown script"))
	}
	return goredis.NewCmdResult(int64(1), nil)
}

func (m *memRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd {
	return goredis.NewCmdResult(nil, errors.New("EVAL not supported"))
}

func (m *memRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *memRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *goredis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *memRedis) ScriptExists(ctx context.Context, hashes ...string) *goredis.BoolSliceCmd {
	return goredis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *memRedis) ScriptLoad(ctx context.Context, script string) *goredis.StringCmd {
	return goredis.NewStringResult("", nil)
}

func (m *memRedis) renewCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renews
}

func TestRedis_HeldPastTTLWhileRenewed(t *testing.T) {
	defer goleak.VerifyNone(t)

	rdb := newMemRedis()
	r := NewRedis(rdb, 60*time.Millisecond)
	key := ConversationKey("l1", "t1")

	unlock, err := r.Lock(context.Background(), key)
	require.NoError(t, err)

	// A second replica keeps trying for several TTLs and must not get in.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = NewRedis(rdb, 60*time.Millisecond).Lock(ctx, key)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.Greater(t, rdb.renewCount(), 2)

	unlock()
	unlock()

	unlock2, err := r.Lock(context.Background(), key)
	require.NoError(t, err, "released lock can be taken again")
	unlock2()
}

func TestRedis_CancelledRequestKeepsLockUntilUnlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	rdb := newMemRedis()
	r := NewRedis(rdb, 60*time.Millisecond)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	unlock, err := r.Lock(reqCtx, "k")
	require.NoError(t, err)
	cancelReq()

	time.Sleep(150 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
}

func TestKeepAlive_StopsWhenLockLost(t *testing.T) {
	defer goleak.VerifyNone(t)

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(context.Background(), time.Millisecond, func(context.Context) (bool, error) {
			calls++
			switch calls {
			case 1:
				return false, errors.New("connection reset")
			case 2:
				return true, nil
			}
			return false, nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not stop after losing the lock")
	}
	assert.Equal(t, 3, calls, "errors are retried, a lost lock ends the loop")
}
