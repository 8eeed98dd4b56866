package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/skyroute/provider"
)

func newTestSettings() (*Settings, *MemoryProfileStore) {
	profiles := NewMemoryProfileStore()
	return NewSettings(provider.Default(), profiles), profiles
}

func TestSettings_SetMode(t *testing.T) {
	ctx := context.Background()
	s, profiles := newTestSettings()

	require.NoError(t, s.SetMode(ctx, "u1", ModeMaxPerformance))
	p, err := profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ModeMaxPerformance, p.Mode)

	err = s.SetMode(ctx, "u1", Mode("turbo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown routing mode")

	// Failed update leaves the stored mode intact.
	p, err = profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ModeMaxPerformance, p.Mode)
}

func TestSettings_SetPreferredModel(t *testing.T) {
	ctx := context.Background()
	s, profiles := newTestSettings()

	require.NoError(t, s.SetPreferredModel(ctx, "u1", "anthropic", "claude-sonnet-4-5"))
	p, err := profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.PreferredProvider)
	assert.Equal(t, "claude-sonnet-4-5", p.PreferredModel)

	err = s.SetPreferredModel(ctx, "u1", "anthropic", "claude-instant-1")
	require.Error(t, err)
}

func TestSettings_SetAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit provider", func(t *testing.T) {
		s, profiles := newTestSettings()
		providerID, err := s.SetAPIKey(ctx, "u1", "zai", zaiKey)
		require.NoError(t, err)
		assert.Equal(t, "zai", providerID)

		p, err := profiles.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, zaiKey, p.Key("zai"))
	})

	t.Run("provider detected from prefix", func(t *testing.T) {
		s, _ := newTestSettings()
		providerID, err := s.SetAPIKey(ctx, "u1", "", anthropicKey)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", providerID)
	})

	t.Run("undetectable key", func(t *testing.T) {
		s, _ := newTestSettings()
		_, err := s.SetAPIKey(ctx, "u1", "", "not-a-key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "specify the provider")
	})

	t.Run("format rejected", func(t *testing.T) {
		s, _ := newTestSettings()
		_, err := s.SetAPIKey(ctx, "u1", "deepseek", "sk-short")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DeepSeek")
	})
}

func TestSettings_RemoveAPIKey(t *testing.T) {
	ctx := context.Background()
	s, profiles := newTestSettings()

	_, err := s.SetAPIKey(ctx, "u1", "zai", zaiKey)
	require.NoError(t, err)
	require.NoError(t, s.RemoveAPIKey(ctx, "u1", "zai"))

	p, err := profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, p.Key("zai"))
}

func TestMemoryProfileStore_ClonesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()

	original := &UserRoutingProfile{
		UserID:  "u1",
		Mode:    ModeCostEffective,
		APIKeys: map[string]string{"zai": zaiKey},
	}
	require.NoError(t, store.UpsertProfile(ctx, original))

	// Mutating the caller's copy afterwards must not leak into the store.
	original.APIKeys["zai"] = "mutated"

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, zaiKey, p.Key("zai"))

	// Mutating a read copy must not leak either.
	p.APIKeys["zai"] = "mutated"
	again, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, zaiKey, again.Key("zai"))
}
