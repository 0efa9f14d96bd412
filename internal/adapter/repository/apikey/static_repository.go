package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// StaticRepository implements domain.APIKeyRepository over a fixed key list
// loaded from configuration.
type StaticRepository struct {
	digests [][sha256.Size]byte
}

// NewStaticRepository creates a repository accepting the given keys. Blank keys are ignored.
func NewStaticRepository(keys []string) *StaticRepository {
	r := &StaticRepository{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		r.digests = append(r.digests, sha256.Sum256([]byte(k)))
	}
	return r
}

// Len returns the number of configured keys.
func (r *StaticRepository) Len() int {
	return len(r.digests)
}

// IsValid compares key against every configured key in constant time.
func (r *StaticRepository) IsValid(ctx context.Context, key string) (bool, error) {
	sum := sha256.Sum256([]byte(key))
	valid := 0
	for i := range r.digests {
		valid |= subtle.ConstantTimeCompare(sum[:], r.digests[i][:])
	}
	return valid == 1, nil
}
