package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLockTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestAcquireLock_SucceedsWhenFree(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	lock, err := AcquireLock(context.Background(), client, "aw:schedule_lock:one", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if lock == nil {
		t.Fatal("expected a lock when the key is free")
	}
}

func TestAcquireLock_FailsWhenHeld(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	ctx := context.Background()
	first, err := AcquireLock(ctx, client, "aw:schedule_lock:contended", time.Minute)
	if err != nil || first == nil {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}

	second, err := AcquireLock(ctx, client, "aw:schedule_lock:contended", time.Minute)
	if err != nil {
		t.Fatalf("expected no error on contention, got %v", err)
	}
	if second != nil {
		t.Fatal("expected nil lock when already held by another instance")
	}
}

func TestRelease_RemovesOwnLock(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	ctx := context.Background()
	lock, err := AcquireLock(ctx, client, "aw:schedule_lock:release-me", time.Minute)
	if err != nil || lock == nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	reacquired, err := AcquireLock(ctx, client, "aw:schedule_lock:release-me", time.Minute)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if reacquired == nil {
		t.Fatal("expected to reacquire the lock after releasing it")
	}
}

func TestRelease_DoesNotRemoveOthersLock(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	ctx := context.Background()
	key := "aw:schedule_lock:stolen"
	owner, err := AcquireLock(ctx, client, key, time.Minute)
	if err != nil || owner == nil {
		t.Fatalf("acquire failed: %v", err)
	}

	impostor := &DistributedLock{}
	*impostor = *owner
	impostor.token = "not-the-real-token"

	if err := impostor.Release(ctx); err != nil {
		t.Fatalf("release should not error even when it is a no-op: %v", err)
	}

	val, err := client.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("expected lock key to still exist: %v", err)
	}
	if val != owner.token {
		t.Error("expected the real owner's token to remain after an impostor's release")
	}
}

func TestExtend_SucceedsForOwner(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	ctx := context.Background()
	lock, err := AcquireLock(ctx, client, "aw:schedule_lock:extend-me", 5*time.Second)
	if err != nil || lock == nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := lock.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("expected extend to succeed for the owning lock, got %v", err)
	}
	if lock.TTL() != time.Minute {
		t.Errorf("expected TTL updated to 1m, got %v", lock.TTL())
	}
}

func TestExtend_FailsForNonOwner(t *testing.T) {
	client, mr := setupLockTest(t)
	defer mr.Close()

	ctx := context.Background()
	key := "aw:schedule_lock:extend-impostor"
	owner, err := AcquireLock(ctx, client, key, time.Minute)
	if err != nil || owner == nil {
		t.Fatalf("acquire failed: %v", err)
	}

	impostor := &DistributedLock{}
	*impostor = *owner
	impostor.token = "wrong-token"

	if err := impostor.Extend(ctx, time.Minute); err == nil {
		t.Fatal("expected extend to fail for a lock that does not own the key")
	}
}
