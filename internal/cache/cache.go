package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ppiankov/creatorcheck/internal/model"
)

const keyPrefix = "creatorcheck:extract:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ExtractionKey identifies one extractor answer: the same normalized text
// sent to the same provider and model yields the same key
func ExtractionKey(provider, modelName, text string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(provider)))
	h.Write([]byte{0})
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// GetResult loads a cached extraction result
func GetResult(c Cache, key string) (*model.ExtractionResult, bool) {
	if c == nil {
		return nil, false
	}
	data, ok := c.Get(key)
	if !ok {
		return nil, false
	}

	var result model.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		_ = c.Delete(key)
		return nil, false
	}
	return &result, true
}

// SetResult stores an extraction result
func SetResult(c Cache, key string, result *model.ExtractionResult, ttl time.Duration) error {
	if c == nil || result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.Set(key, data, ttl)
}
