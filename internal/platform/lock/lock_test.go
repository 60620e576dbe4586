package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Lock(context.Background(), "inv-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
	if km.size() != 0 {
		t.Errorf("expected entries to be dropped, %d left", km.size())
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	releaseA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := km.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("expected key b to be free, got %v", err)
	}
	releaseB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	km := NewKeyedMutex()
	release, _ := km.Lock(context.Background(), "a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := km.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	release()
	release() // second call is a no-op
	if km.size() != 0 {
		t.Errorf("expected entries to be dropped, %d left", km.size())
	}
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	evals  int
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	fr := &fakeRedis{values: map[string]string{}}
	l := newRedisLocker(fr, "clinic:lock:", time.Second, zerolog.Nop())

	release, err := l.Lock(context.Background(), "invoice:42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fr.values["clinic:lock:invoice:42"]; !ok {
		t.Fatal("expected prefixed key to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "invoice:42"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected second acquire to wait until deadline, got %v", err)
	}

	release()
	if len(fr.values) != 0 {
		t.Errorf("expected key released, got %v", fr.values)
	}
	if fr.evals != 1 {
		t.Errorf("expected one release script call, got %d", fr.evals)
	}
}

func TestRedisLocker_DefaultTTL(t *testing.T) {
	l := newRedisLocker(&fakeRedis{values: map[string]string{}}, "", 0, zerolog.Nop())
	if l.ttl != 10*time.Second {
		t.Errorf("expected default ttl 10s, got %v", l.ttl)
	}
}
