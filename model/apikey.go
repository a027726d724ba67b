package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Laisky/errors/v2"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// API key states.
const (
	ApiKeyStatusActive   = "active"
	ApiKeyStatusInactive = "inactive"
)

// ApiKey authenticates the public edge. Only the hash is stored.
type ApiKey struct {
	ID        string `json:"id" gorm:"primaryKey;size:64"`
	ProjectID string `json:"project_id" gorm:"size:64;index"`
	Name      string `json:"name" gorm:"size:128"`

	TokenHash   string `json:"-" gorm:"size:64;uniqueIndex"`
	TokenPrefix string `json:"token_prefix" gorm:"size:16"`

	Status        string   `json:"status" gorm:"size:16;default:active"`
	UsageLimitUSD *float64 `json:"usage_limit_usd"`
	CreatedBy     string   `json:"created_by" gorm:"size:64"`
	LastUsedAt    int64    `json:"last_used_at" gorm:"bigint"`

	CreatedAt int64          `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64          `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// authCache keeps hot auth lookups off the database for a minute.
var authCache = gocache.New(time.Minute, 5*time.Minute)

// HashToken derives the stored lookup key for a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GetApiKeyByToken resolves a bearer token, via cache then storage.
func GetApiKeyByToken(token string) (*ApiKey, error) {
	if token == "" {
		return nil, errors.New("token is empty")
	}
	hash := HashToken(token)
	if cached, ok := authCache.Get("key:" + hash); ok {
		return cached.(*ApiKey), nil
	}

	var key ApiKey
	if err := DB.First(&key, "token_hash = ?", hash).Error; err != nil {
		return nil, errors.Wrap(err, "load api key")
	}
	authCache.Set("key:"+hash, &key, gocache.DefaultExpiration)
	return &key, nil
}

// Active reports whether the key may authenticate requests.
func (k *ApiKey) Active() bool {
	return k.Status == ApiKeyStatusActive
}

// TouchLastUsed stamps the key asynchronously-safe via UpdateColumn (no
// UpdatedAt churn).
func (k *ApiKey) TouchLastUsed() {
	_ = DB.Model(&ApiKey{}).
		Where("id = ?", k.ID).
		UpdateColumn("last_used_at", time.Now().UnixMilli()).Error
}

// InvalidateAuthCache drops the cached entry after key mutation.
func InvalidateAuthCache(token string) {
	authCache.Delete("key:" + HashToken(token))
}
