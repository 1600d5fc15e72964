package lock

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrLockFailed means the wait budget ran out while someone else held the key.
	ErrLockFailed = errors.New("获取账户锁失败")
	// ErrLockUnavailable means the lock backend itself could not be reached.
	ErrLockUnavailable = errors.New("锁服务不可用")
)

// Release gives a held lock back. It is safe to call more than once.
type Release func()

// Locker hands out exclusive locks keyed by account number.
type Locker interface {
	// Acquire blocks until the key is held, the wait budget runs out
	// (ErrLockFailed), the backend fails (ErrLockUnavailable) or ctx is done.
	Acquire(ctx context.Context, key string) (Release, error)
}

// AcquireAll 按账号升序加锁（去重），释放时逆序
//
// Every caller goes through this ordering so two transfers touching the same
// pair of accounts cannot deadlock.
func AcquireAll(ctx context.Context, locker Locker, keys ...string) (Release, error) {
	ordered := sortedUnique(keys)
	held := make([]Release, 0, len(ordered))

	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, key := range ordered {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}
	return once(releaseAll), nil
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func once(fn func()) Release {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		fn()
	}
}
