package cache

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := t.Context()

	if err := mc.Set(ctx, VerifyKey("t1"), []byte("ok"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := mc.Get(ctx, VerifyKey("t1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "ok" {
		t.Errorf("Get = %q, want %q", val, "ok")
	}

	exists, err := mc.Exists(ctx, VerifyKey("t1"))
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v, want true, nil", exists, err)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	if _, err := mc.Get(t.Context(), "absent"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(absent) = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := t.Context()

	if err := mc.Set(ctx, "short", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := mc.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(expired) = %v, want ErrCacheMiss", err)
	}
	if exists, _ := mc.Exists(ctx, "short"); exists {
		t.Error("Exists(expired) = true, want false")
	}
}

func TestMemoryCacheZeroTTLDoesNotExpire(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := t.Context()

	if err := mc.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := mc.Get(ctx, "forever"); err != nil {
		t.Errorf("Get = %v, want nil", err)
	}
}

func TestMemoryCacheClearPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := t.Context()

	keys := []string{
		VerifyKey("a"),
		VerifyKey("b"),
		StudyKey("1.2.3", "summary"),
	}
	for _, k := range keys {
		if err := mc.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	if err := mc.Clear(ctx, "target:*"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	for _, k := range keys[:2] {
		if exists, _ := mc.Exists(ctx, k); exists {
			t.Errorf("key %s survived Clear", k)
		}
	}
	if exists, _ := mc.Exists(ctx, keys[2]); !exists {
		t.Errorf("key %s removed by unrelated Clear", keys[2])
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := t.Context()

	if err := mc.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mc.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mc.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(deleted) = %v, want ErrCacheMiss", err)
	}
}
