package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyCampaignConfig is the cache key for a campaign's configuration row.
func (kb *KeyBuilder) KeyCampaignConfig(campaignID int64) string {
	return kb.BuildKey(fmt.Sprintf(KeyCampaignConfig, campaignID))
}

// KeyNotifyDedup is the idempotency-lock key for a notification event.
func (kb *KeyBuilder) KeyNotifyDedup(eventKey string) string {
	return kb.BuildKey(fmt.Sprintf(KeyNotifyDedup, eventKey))
}

// KeyAdminAction is the idempotency-lock key for a manual admin action.
func (kb *KeyBuilder) KeyAdminAction(actionKey string) string {
	return kb.BuildKey(fmt.Sprintf(KeyAdminAction, actionKey))
}
