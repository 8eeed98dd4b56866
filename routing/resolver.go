package routing

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/provider"
)

// ProfileStore provides access to user routing profiles.
type ProfileStore interface {
	// GetProfile returns the user's profile, or a default profile when the
	// user has never saved one.
	GetProfile(ctx context.Context, userID string) (*UserRoutingProfile, error)

	// UpsertProfile saves the profile. Last writer wins.
	UpsertProfile(ctx context.Context, profile *UserRoutingProfile) error
}

// Resolver picks a usable provider/model/key per request.
//
// Resolution is a pure key-availability decision: it fails closed only when
// no key exists for any eligible chain entry. Downstream call failures are a
// dispatcher concern and never cause re-resolution of an already-tried entry.
type Resolver struct {
	registry     *provider.Registry
	profiles     ProfileStore
	platformKeys map[string]string
}

// NewResolver creates a resolver. platformKeys maps provider id to the
// operator-owned key for that provider (may be empty).
func NewResolver(registry *provider.Registry, profiles ProfileStore, platformKeys map[string]string) *Resolver {
	if platformKeys == nil {
		platformKeys = map[string]string{}
	}
	return &Resolver{registry: registry, profiles: profiles, platformKeys: platformKeys}
}

// Resolve picks a model for the user. hasCredits gates every platform-key
// path that would charge the user. The returned error, when non-nil, is an
// actionable configuration error meant to be shown to the user verbatim.
func (r *Resolver) Resolve(ctx context.Context, userID string, hasCredits bool) (ResolvedModel, error) {
	profile, err := r.profiles.GetProfile(ctx, userID)
	if err != nil {
		return ResolvedModel{}, errors.Wrap(err, "load routing profile")
	}

	mode := profile.Mode
	if !mode.Valid() {
		mode = ModeCostEffective
	}

	var resolved ResolvedModel
	switch mode {
	case ModeManual:
		resolved, err = r.resolveManual(profile, hasCredits)
	case ModeMaxPerformance:
		resolved, err = r.resolveMaxPerformance(profile, hasCredits)
	default:
		resolved, err = r.resolveCostEffective(profile, hasCredits)
	}
	if err != nil {
		return ResolvedModel{}, err
	}

	slog.Debug("routing: model resolved",
		"user_id", userID,
		"mode", string(mode),
		"provider", resolved.Provider,
		"model", resolved.Model,
		"is_fallback", resolved.IsFallback,
		"is_free", resolved.IsFree,
		"platform_key", resolved.UsingPlatformKey)
	return resolved, nil
}

// resolveManual uses exactly the user's chosen provider/model. No fallback.
func (r *Resolver) resolveManual(profile *UserRoutingProfile, hasCredits bool) (ResolvedModel, error) {
	if profile.PreferredProvider == "" || profile.PreferredModel == "" {
		return ResolvedModel{}, errors.New("manual mode needs a preferred provider and model: pick one in settings, or switch to cost_effective mode")
	}
	spec, ok := r.registry.FindModel(profile.PreferredProvider, profile.PreferredModel)
	if !ok {
		return ResolvedModel{}, errors.Errorf("unknown model %s/%s: pick a model from the catalog in settings", profile.PreferredProvider, profile.PreferredModel)
	}

	if key := profile.Key(profile.PreferredProvider); key != "" {
		return ResolvedModel{
			Provider: profile.PreferredProvider,
			Model:    profile.PreferredModel,
			APIKey:   key,
			IsFree:   true,
		}, nil
	}

	platformKey := r.platformKeys[profile.PreferredProvider]
	if platformKey == "" {
		return ResolvedModel{}, errors.Errorf("no key available for %s: register your own API key in settings, or switch routing mode", profile.PreferredProvider)
	}
	if !hasCredits && !spec.Free {
		return ResolvedModel{}, errors.Errorf("using the platform key for %s requires credits: register your own key, top up credits, or switch routing mode", profile.PreferredProvider)
	}
	return ResolvedModel{
		Provider:         profile.PreferredProvider,
		Model:            profile.PreferredModel,
		APIKey:           platformKey,
		IsFree:           spec.Free,
		UsingPlatformKey: true,
	}, nil
}

// resolveCostEffective walks free then paid chains, cheapest first.
func (r *Resolver) resolveCostEffective(profile *UserRoutingProfile, hasCredits bool) (ResolvedModel, error) {
	// 1. The user's own key for their preferred provider is free to use.
	if profile.PreferredProvider != "" {
		if key := profile.Key(profile.PreferredProvider); key != "" {
			model := profile.PreferredModel
			if model == "" {
				if def, ok := r.registry.DefaultModel(profile.PreferredProvider); ok {
					model = def.ID
				}
			}
			if model != "" {
				return ResolvedModel{
					Provider: profile.PreferredProvider,
					Model:    model,
					APIKey:   key,
					IsFree:   true,
				}, nil
			}
		}
	}

	// 2. Free chain, user key then platform key per entry.
	if m, ok := r.walkChain(FreeChain, profile, true, true); ok {
		m.IsFree = true
		return m, nil
	}

	// 3. Paid chain with the user's own keys; free to the user.
	if m, ok := r.walkChain(PaidChain, profile, true, false); ok {
		m.IsFree = true
		return m, nil
	}

	// 4. Paid chain with platform keys; these calls are charged.
	if hasCredits {
		if m, ok := r.walkChain(PaidChain, profile, false, true); ok {
			return m, nil
		}
	}

	return ResolvedModel{}, errors.New("no usable key found: register a free API key (Z.AI GLM-4.5-Flash, OpenRouter, or SiliconFlow all have free tiers) in settings, or top up credits")
}

// resolveMaxPerformance inverts the ordering: strongest models first, free
// chain as a last resort before failing.
func (r *Resolver) resolveMaxPerformance(profile *UserRoutingProfile, hasCredits bool) (ResolvedModel, error) {
	if m, ok := r.walkChain(PerformanceChain, profile, true, false); ok {
		m.IsFree = true
		return m, nil
	}
	if hasCredits {
		if m, ok := r.walkChain(PerformanceChain, profile, false, true); ok {
			return m, nil
		}
	}
	if m, ok := r.walkChain(FreeChain, profile, true, true); ok {
		m.IsFree = true
		return m, nil
	}
	return ResolvedModel{}, errors.New("no usable key for max_performance mode: register an API key in settings, top up credits, or switch to cost_effective mode")
}

// walkChain tries each entry in order and returns the first entry whose key
// resolves. Within an entry the user's key wins over the platform key.
func (r *Resolver) walkChain(chain []ChainEntry, profile *UserRoutingProfile, tryUserKeys, tryPlatformKeys bool) (ResolvedModel, bool) {
	for _, entry := range chain {
		if _, ok := r.registry.FindModel(entry.Provider, entry.Model); !ok {
			continue
		}
		if tryUserKeys {
			if key := profile.Key(entry.Provider); key != "" {
				return ResolvedModel{
					Provider:   entry.Provider,
					Model:      entry.Model,
					APIKey:     key,
					IsFallback: true,
				}, true
			}
		}
		if tryPlatformKeys {
			if key := r.platformKeys[entry.Provider]; key != "" {
				return ResolvedModel{
					Provider:         entry.Provider,
					Model:            entry.Model,
					APIKey:           key,
					IsFallback:       true,
					UsingPlatformKey: true,
				}, true
			}
		}
	}
	return ResolvedModel{}, false
}
