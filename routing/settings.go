package routing

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/provider"
)

// Settings applies explicit user settings commands to routing profiles.
// All mutations validate against the provider registry before saving.
type Settings struct {
	registry *provider.Registry
	profiles ProfileStore
}

// NewSettings creates the settings surface over a profile store.
func NewSettings(registry *provider.Registry, profiles ProfileStore) *Settings {
	return &Settings{registry: registry, profiles: profiles}
}

// SetMode switches the user's routing mode.
func (s *Settings) SetMode(ctx context.Context, userID string, mode Mode) error {
	if !mode.Valid() {
		return errors.Errorf("unknown routing mode %q: use manual, cost_effective, or max_performance", mode)
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load profile")
	}
	profile.Mode = mode
	return s.profiles.UpsertProfile(ctx, profile)
}

// SetPreferredModel sets the user's preferred provider/model pair.
func (s *Settings) SetPreferredModel(ctx context.Context, userID, providerID, modelID string) error {
	if _, ok := s.registry.FindModel(providerID, modelID); !ok {
		return errors.Errorf("unknown model %s/%s", providerID, modelID)
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load profile")
	}
	profile.PreferredProvider = providerID
	profile.PreferredModel = modelID
	return s.profiles.UpsertProfile(ctx, profile)
}

// SetAPIKey stores a provider key for the user after format validation.
// When providerID is empty the provider is detected from the key prefix.
// Key liveness is not probed here: a stored key is trusted optimistically
// and only proven by its first real call.
func (s *Settings) SetAPIKey(ctx context.Context, userID, providerID, key string) (string, error) {
	if providerID == "" {
		providerID = s.registry.DetectProviderFromKeyPrefix(key)
		if providerID == "" {
			return "", errors.New("could not detect the provider from this key: specify the provider explicitly")
		}
	}
	if !s.registry.ValidateKeyFormat(providerID, key) {
		spec, _ := s.registry.Get(providerID)
		name := providerID
		if spec != nil {
			name = spec.DisplayName
		}
		return "", errors.Errorf("this does not look like a valid %s key", name)
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "load profile")
	}
	if profile.APIKeys == nil {
		profile.APIKeys = make(map[string]string)
	}
	profile.APIKeys[providerID] = key
	return providerID, s.profiles.UpsertProfile(ctx, profile)
}

// RemoveAPIKey deletes a stored provider key.
func (s *Settings) RemoveAPIKey(ctx context.Context, userID, providerID string) error {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load profile")
	}
	delete(profile.APIKeys, providerID)
	return s.profiles.UpsertProfile(ctx, profile)
}

// MemoryProfileStore is an in-process ProfileStore for tests and dev mode.
// Profiles are isolated per user id; concurrent access for different users
// is safe, same-user writes are last-writer-wins.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*UserRoutingProfile
}

// NewMemoryProfileStore creates an empty profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*UserRoutingProfile)}
}

func (m *MemoryProfileStore) GetProfile(_ context.Context, userID string) (*UserRoutingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[userID]; ok {
		return cloneProfile(p), nil
	}
	return &UserRoutingProfile{
		UserID:       userID,
		Mode:         ModeCostEffective,
		APIKeys:      map[string]string{},
		AutoFallback: true,
	}, nil
}

func (m *MemoryProfileStore) UpsertProfile(_ context.Context, profile *UserRoutingProfile) error {
	if profile.UserID == "" {
		return errors.New("profile user id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = cloneProfile(profile)
	return nil
}

func cloneProfile(p *UserRoutingProfile) *UserRoutingProfile {
	out := *p
	out.APIKeys = make(map[string]string, len(p.APIKeys))
	for k, v := range p.APIKeys {
		out.APIKeys[k] = v
	}
	return &out
}
