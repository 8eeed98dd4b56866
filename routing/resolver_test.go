package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/skyroute/provider"
)

const (
	zaiKey       = "0123456789abcdef0123456789abcdef.ABCDefgh12345678"
	deepseekKey  = "sk-0123456789abcdef0123456789abcdef"
	anthropicKey = "sk-ant-REDACTED"
)

func newTestResolver(t *testing.T, platformKeys map[string]string) (*Resolver, *MemoryProfileStore) {
	t.Helper()
	profiles := NewMemoryProfileStore()
	return NewResolver(provider.Default(), profiles, platformKeys), profiles
}

func saveProfile(t *testing.T, profiles *MemoryProfileStore, p *UserRoutingProfile) {
	t.Helper()
	require.NoError(t, profiles.UpsertProfile(context.Background(), p))
}

func TestChains_AllEntriesExistInCatalog(t *testing.T) {
	registry := provider.Default()
	for _, chain := range [][]ChainEntry{FreeChain, PaidChain, PerformanceChain} {
		for _, entry := range chain {
			_, ok := registry.FindModel(entry.Provider, entry.Model)
			assert.True(t, ok, "chain entry %s/%s missing from catalog", entry.Provider, entry.Model)
		}
	}
	for _, entry := range FreeChain {
		registry := provider.Default()
		m, _ := registry.FindModel(entry.Provider, entry.Model)
		assert.True(t, m.Free, "free chain entry %s/%s must be a free model", entry.Provider, entry.Model)
	}
}

func TestResolve_ManualMode(t *testing.T) {
	ctx := context.Background()

	t.Run("uses user key for chosen model", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:            "u1",
			Mode:              ModeManual,
			PreferredProvider: "deepseek",
			PreferredModel:    "deepseek-chat",
			APIKeys:           map[string]string{"deepseek": deepseekKey},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "deepseek", m.Provider)
		assert.Equal(t, "deepseek-chat", m.Model)
		assert.Equal(t, deepseekKey, m.APIKey)
		assert.False(t, m.IsFallback)
		assert.True(t, m.IsFree)
		assert.False(t, m.UsingPlatformKey)
	})

	t.Run("never falls back", func(t *testing.T) {
		// User has a valid zai key, but manual mode pins anthropic which the
		// user has no key for. Resolution must fail, not route to zai.
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:            "u1",
			Mode:              ModeManual,
			PreferredProvider: "anthropic",
			PreferredModel:    "claude-sonnet-4-5",
			APIKeys:           map[string]string{"zai": zaiKey},
		})

		_, err := r.Resolve(ctx, "u1", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "register your own API key")
	})

	t.Run("platform key needs credits for paid model", func(t *testing.T) {
		r, profiles := newTestResolver(t, map[string]string{"anthropic": anthropicKey})
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:            "u1",
			Mode:              ModeManual,
			PreferredProvider: "anthropic",
			PreferredModel:    "claude-sonnet-4-5",
		})

		_, err := r.Resolve(ctx, "u1", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires credits")

		m, err := r.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		assert.True(t, m.UsingPlatformKey)
		assert.False(t, m.IsFree)
	})

	t.Run("unset preference is an error", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{UserID: "u1", Mode: ModeManual})

		_, err := r.Resolve(ctx, "u1", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "preferred provider and model")
	})

	t.Run("unknown model is an error", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:            "u1",
			Mode:              ModeManual,
			PreferredProvider: "deepseek",
			PreferredModel:    "deepseek-v9",
		})

		_, err := r.Resolve(ctx, "u1", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown model")
	})
}

func TestResolve_CostEffective(t *testing.T) {
	ctx := context.Background()

	t.Run("preferred provider user key wins", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:            "u1",
			Mode:              ModeCostEffective,
			PreferredProvider: "deepseek",
			PreferredModel:    "deepseek-reasoner",
			APIKeys:           map[string]string{"deepseek": deepseekKey},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "deepseek", m.Provider)
		assert.Equal(t, "deepseek-reasoner", m.Model)
		assert.True(t, m.IsFree)
		assert.False(t, m.IsFallback)
	})

	t.Run("free chain before paid", func(t *testing.T) {
		// A zai key routes to the free chain head even though the user also
		// has a paid-capable anthropic key.
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID: "u1",
			Mode:   ModeCostEffective,
			APIKeys: map[string]string{
				"zai":       zaiKey,
				"anthropic": anthropicKey,
			},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "zai", m.Provider)
		assert.Equal(t, "glm-4.5-flash", m.Model)
		assert.True(t, m.IsFree)
		assert.True(t, m.IsFallback)
	})

	t.Run("platform key serves free chain without credits", func(t *testing.T) {
		r, profiles := newTestResolver(t, map[string]string{"zai": zaiKey})
		saveProfile(t, profiles, &UserRoutingProfile{UserID: "u1", Mode: ModeCostEffective})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "zai", m.Provider)
		assert.True(t, m.IsFree)
		assert.True(t, m.UsingPlatformKey)
	})

	t.Run("paid chain via user key is free to the user", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:  "u1",
			Mode:    ModeCostEffective,
			APIKeys: map[string]string{"deepseek": deepseekKey},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "deepseek", m.Provider)
		assert.Equal(t, "deepseek-chat", m.Model)
		assert.True(t, m.IsFree)
	})

	t.Run("paid platform key only with credits", func(t *testing.T) {
		r, profiles := newTestResolver(t, map[string]string{"deepseek": deepseekKey})
		saveProfile(t, profiles, &UserRoutingProfile{UserID: "u1", Mode: ModeCostEffective})

		_, err := r.Resolve(ctx, "u1", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no usable key")

		m, err := r.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		assert.Equal(t, "deepseek-chat", m.Model)
		assert.True(t, m.UsingPlatformKey)
		assert.False(t, m.IsFree)
	})

	t.Run("no keys no credits is an actionable error", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{UserID: "u1", Mode: ModeCostEffective})

		_, err := r.Resolve(ctx, "u1", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "free tiers")
	})
}

func TestResolve_MaxPerformance(t *testing.T) {
	ctx := context.Background()

	t.Run("strongest model with user key first", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:  "u1",
			Mode:    ModeMaxPerformance,
			APIKeys: map[string]string{"anthropic": anthropicKey},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", m.Provider)
		assert.Equal(t, "claude-opus-4-1", m.Model)
		assert.True(t, m.IsFree)
	})

	t.Run("platform key gated on credits", func(t *testing.T) {
		r, profiles := newTestResolver(t, map[string]string{"anthropic": anthropicKey})
		saveProfile(t, profiles, &UserRoutingProfile{UserID: "u1", Mode: ModeMaxPerformance})

		_, err := r.Resolve(ctx, "u1", false)
		require.Error(t, err)

		m, err := r.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		assert.Equal(t, "claude-opus-4-1", m.Model)
		assert.True(t, m.UsingPlatformKey)
	})

	t.Run("degrades to free chain when no performance key", func(t *testing.T) {
		r, profiles := newTestResolver(t, nil)
		saveProfile(t, profiles, &UserRoutingProfile{
			UserID:  "u1",
			Mode:    ModeMaxPerformance,
			APIKeys: map[string]string{"zai": zaiKey},
		})

		m, err := r.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, "glm-4.5-flash", m.Model)
		assert.True(t, m.IsFree)
	})
}

func TestResolve_DefaultsForNewUser(t *testing.T) {
	// A user with no saved profile resolves in cost_effective mode.
	r, _ := newTestResolver(t, map[string]string{"zai": zaiKey})
	m, err := r.Resolve(context.Background(), "fresh-user", false)
	require.NoError(t, err)
	assert.Equal(t, "glm-4.5-flash", m.Model)
}

func TestResolve_ConcurrentUsersIndependent(t *testing.T) {
	ctx := context.Background()
	r, profiles := newTestResolver(t, nil)
	saveProfile(t, profiles, &UserRoutingProfile{
		UserID:  "alice",
		Mode:    ModeCostEffective,
		APIKeys: map[string]string{"zai": zaiKey},
	})
	saveProfile(t, profiles, &UserRoutingProfile{
		UserID:  "bob",
		Mode:    ModeCostEffective,
		APIKeys: map[string]string{"deepseek": deepseekKey},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m, err := r.Resolve(ctx, "alice", false)
			assert.NoError(t, err)
			assert.Equal(t, "zai", m.Provider)
		}()
		go func() {
			defer wg.Done()
			m, err := r.Resolve(ctx, "bob", false)
			assert.NoError(t, err)
			assert.Equal(t, "deepseek", m.Provider)
		}()
	}
	wg.Wait()
}
