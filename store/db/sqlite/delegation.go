package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/store"
)

const delegationFields = "id, user_id, created_ts, updated_ts, strategy, context_summary, task_description, suggested_question, user_message, cloud_instruction, status, result"

// CreateDelegation inserts a new delegation record.
func (d *DB) CreateDelegation(ctx context.Context, create *store.Delegation) (*store.Delegation, error) {
	now := time.Now()
	if create.CreatedAt.IsZero() {
		create.CreatedAt = now
	}
	create.UpdatedAt = now
	if create.Status == "" {
		create.Status = store.DelegationPending
	}

	stmt := `
		INSERT INTO delegation (` + delegationFields + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.UserID,
		create.CreatedAt.Unix(),
		create.UpdatedAt.Unix(),
		create.Strategy,
		create.ContextSummary,
		create.TaskDescription,
		create.SuggestedQuestion,
		create.UserMessage,
		create.CloudInstruction,
		string(create.Status),
		create.Result,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create delegation")
	}
	return create, nil
}

// GetDelegation returns a delegation by id, or nil when absent.
func (d *DB) GetDelegation(ctx context.Context, id string) (*store.Delegation, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+delegationFields+" FROM delegation WHERE id = ?", id)
	delegation, err := scanDelegation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delegation")
	}
	return delegation, nil
}

// ListDelegations lists delegations matching the filter, oldest first.
func (d *DB) ListDelegations(ctx context.Context, find *store.FindDelegation) ([]*store.Delegation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil {
		if find.ID != nil {
			where, args = append(where, "id = ?"), append(args, *find.ID)
		}
		if find.UserID != nil {
			where, args = append(where, "user_id = ?"), append(args, *find.UserID)
		}
		if find.Status != nil {
			where, args = append(where, "status = ?"), append(args, string(*find.Status))
		}
	}

	stmt := "SELECT " + delegationFields + " FROM delegation WHERE " + strings.Join(where, " AND ") + " ORDER BY created_ts ASC"
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list delegations")
	}
	defer rows.Close()

	var list []*store.Delegation
	for rows.Next() {
		delegation, err := scanDelegation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan delegation")
		}
		list = append(list, delegation)
	}
	return list, rows.Err()
}

// UpdateDelegationStatus compare-and-swaps status from -> to. The WHERE
// clause on the old status is what makes the transition exclusive: only one
// caller observes rows affected = 1.
func (d *DB) UpdateDelegationStatus(ctx context.Context, id string, from, to store.DelegationStatus, result string) (bool, error) {
	stmt := `
		UPDATE delegation
		SET status = ?, result = ?, updated_ts = ?
		WHERE id = ? AND status = ?
	`
	res, err := d.db.ExecContext(ctx, stmt, string(to), result, time.Now().Unix(), id, string(from))
	if err != nil {
		return false, errors.Wrap(err, "failed to update delegation status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return affected == 1, nil
}

// DeleteTerminalDelegationsBefore removes terminal delegations last updated
// before cutoff.
func (d *DB) DeleteTerminalDelegationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM delegation WHERE status IN (?, ?) AND updated_ts < ?",
		string(store.DelegationCompleted), string(store.DelegationFailed), cutoff.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete terminal delegations")
	}
	return res.RowsAffected()
}

// FailStaleDispatching regresses dispatching records older than cutoff to
// failed, making them eligible for retry after a crash mid-call.
func (d *DB) FailStaleDispatching(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		"UPDATE delegation SET status = ?, updated_ts = ? WHERE status = ? AND updated_ts < ?",
		string(store.DelegationFailed), time.Now().Unix(), string(store.DelegationDispatching), cutoff.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to fail stale dispatching delegations")
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelegation(row rowScanner) (*store.Delegation, error) {
	var delegation store.Delegation
	var createdTs, updatedTs int64
	var status string
	if err := row.Scan(
		&delegation.ID,
		&delegation.UserID,
		&createdTs,
		&updatedTs,
		&delegation.Strategy,
		&delegation.ContextSummary,
		&delegation.TaskDescription,
		&delegation.SuggestedQuestion,
		&delegation.UserMessage,
		&delegation.CloudInstruction,
		&status,
		&delegation.Result,
	); err != nil {
		return nil, err
	}
	delegation.CreatedAt = time.Unix(createdTs, 0)
	delegation.UpdatedAt = time.Unix(updatedTs, 0)
	delegation.Status = store.DelegationStatus(status)
	return &delegation, nil
}
