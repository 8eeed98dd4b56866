// Package routing implements tiered model resolution: given a user's mode,
// keys, and credit state, it deterministically picks a usable
// provider/model/key combination or reports an actionable error.
package routing

// Mode is the user's routing strategy.
type Mode string

const (
	// ModeManual uses the user's explicitly chosen provider/model with no
	// fallback.
	ModeManual Mode = "manual"

	// ModeCostEffective prefers free and cheap models. This is the default.
	ModeCostEffective Mode = "cost_effective"

	// ModeMaxPerformance prefers the highest-capability models first.
	ModeMaxPerformance Mode = "max_performance"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeManual, ModeCostEffective, ModeMaxPerformance:
		return true
	}
	return false
}

// UserRoutingProfile holds a user's routing preferences and decrypted
// provider keys. Mutated only by explicit settings commands.
type UserRoutingProfile struct {
	UserID            string
	Mode              Mode
	PreferredProvider string
	PreferredModel    string
	// APIKeys maps provider id to the user's decrypted key. May be empty.
	APIKeys      map[string]string
	AutoFallback bool
}

// Key returns the user's key for the provider, or "".
func (p *UserRoutingProfile) Key(providerID string) string {
	if p == nil || p.APIKeys == nil {
		return ""
	}
	return p.APIKeys[providerID]
}

// ResolvedModel is the transient outcome of model resolution. It is computed
// per request and never persisted.
type ResolvedModel struct {
	Provider string
	Model    string
	APIKey   string
	// IsFallback is set when the resolution did not land on the user's
	// preferred provider/model.
	IsFallback bool
	// IsFree is set when the call costs the user nothing (own key or a
	// free-tier model).
	IsFree bool
	// UsingPlatformKey is set when the operator's key is used on the
	// user's behalf; such calls are billed at a markup.
	UsingPlatformKey bool
}

// ChainEntry is one step of a fallback chain.
type ChainEntry struct {
	Provider string
	Model    string
}
