package cache

import (
	"context"
	"time"
)

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// VerifyKey generates the cache key for a target's last verification result
func VerifyKey(targetID string) string {
	return "target:" + targetID + ":verify"
}

// StudyKey generates the cache key for a cached study summary
func StudyKey(studyUID, suffix string) string {
	return "study:" + studyUID + ":" + suffix
}
