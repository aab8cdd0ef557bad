package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/fault"
	"github.com/paulexconde/followup/pkg/store"
)

// SessionColumns is exported for callers composing paginated queries.
const SessionColumns = "id, questionnaire_id, started_at, duration_secs, submit_before, frozen, case_id"

// SessionRepo persists sessions. The Tx variants run inside a caller-owned
// transaction so the freeze gate and answer submission read one consistent
// snapshot.
type SessionRepo interface {
	Create(ctx context.Context, session models.Session) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// GetByIDForUpdate locks the session row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Session, error)
	// Start stamps started_at once; a later call leaves the original stamp.
	Start(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error
	// MarkFrozen flips frozen false to true; if another transaction got there
	// first it fails with ErrSessionFrozen.
	MarkFrozen(ctx context.Context, tx *sqlx.Tx, id string) error
	Base() *sqlx.DB
}

type sessionRepo struct {
	datastore store.Datastorer[models.Session]
}

func NewSessionRepo(datastore store.Datastorer[models.Session]) SessionRepo {
	return &sessionRepo{datastore: datastore}
}

func (r *sessionRepo) Base() *sqlx.DB {
	return r.datastore.Base()
}

func (r *sessionRepo) Create(ctx context.Context, session models.Session) (*models.Session, error) {
	created, err := r.datastore.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	model := created.(models.Session)
	return &model, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.datastore.Get(ctx, "SELECT "+SessionColumns+" FROM sessions WHERE id=$1", id)
}

func (r *sessionRepo) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Session, error) {
	var session models.Session
	err := tx.GetContext(ctx, &session,
		"SELECT "+SessionColumns+" FROM sessions WHERE id=$1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Start(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE sessions SET started_at=$2 WHERE id=$1 AND started_at IS NULL", id, at)
	return err
}

func (r *sessionRepo) MarkFrozen(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE sessions SET frozen=TRUE WHERE id=$1 AND frozen=FALSE", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fault.ErrSessionFrozen
	}
	return nil
}


