package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/routing"
)

// GetRoutingProfile returns the stored profile for a user, or nil when the
// user has never saved one.
func (d *DB) GetRoutingProfile(ctx context.Context, userID string) (*routing.UserRoutingProfile, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT user_id, mode, preferred_provider, preferred_model, api_keys, auto_fallback FROM routing_profile WHERE user_id = ?",
		userID)

	var profile routing.UserRoutingProfile
	var mode, apiKeysJSON string
	var autoFallback int
	err := row.Scan(&profile.UserID, &mode, &profile.PreferredProvider, &profile.PreferredModel, &apiKeysJSON, &autoFallback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get routing profile")
	}

	profile.Mode = routing.Mode(mode)
	profile.AutoFallback = autoFallback != 0
	profile.APIKeys = map[string]string{}
	if apiKeysJSON != "" {
		if err := json.Unmarshal([]byte(apiKeysJSON), &profile.APIKeys); err != nil {
			return nil, errors.Wrap(err, "failed to decode api keys")
		}
	}
	return &profile, nil
}

// UpsertRoutingProfile saves a profile, last writer wins.
func (d *DB) UpsertRoutingProfile(ctx context.Context, profile *routing.UserRoutingProfile) error {
	if profile.UserID == "" {
		return errors.New("profile user id required")
	}
	apiKeysJSON, err := json.Marshal(profile.APIKeys)
	if err != nil {
		return errors.Wrap(err, "failed to encode api keys")
	}

	autoFallback := 0
	if profile.AutoFallback {
		autoFallback = 1
	}

	stmt := `
		INSERT INTO routing_profile (user_id, mode, preferred_provider, preferred_model, api_keys, auto_fallback)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			mode = excluded.mode,
			preferred_provider = excluded.preferred_provider,
			preferred_model = excluded.preferred_model,
			api_keys = excluded.api_keys,
			auto_fallback = excluded.auto_fallback
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		profile.UserID,
		string(profile.Mode),
		profile.PreferredProvider,
		profile.PreferredModel,
		string(apiKeysJSON),
		autoFallback,
	); err != nil {
		return errors.Wrap(err, "failed to upsert routing profile")
	}
	return nil
}
