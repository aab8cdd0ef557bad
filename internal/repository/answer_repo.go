package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/store"
)

const answerColumns = "id, session_id, questionnaire_id, question_id, payload, created_at"

// AnswerRepo persists answers. Answers are append-only: a changed answer is a
// new row for the same question and readers keep the most recent one.
type AnswerRepo interface {
	Create(ctx context.Context, answer models.Answer) (*models.Answer, error)
	// CreateTx inserts inside a caller-owned transaction.
	CreateTx(ctx context.Context, tx *sqlx.Tx, answer models.Answer) error
	// ListBySession returns a session's answers ordered oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]models.Answer, error)
	// ListBySessionTx reads within the caller's transaction so answer insert
	// and path recompute observe one snapshot.
	ListBySessionTx(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]models.Answer, error)
}

type answerRepo struct {
	datastore store.Datastorer[models.Answer]
}

func NewAnswerRepo(datastore store.Datastorer[models.Answer]) AnswerRepo {
	return &answerRepo{datastore: datastore}
}

func (r *answerRepo) Create(ctx context.Context, answer models.Answer) (*models.Answer, error) {
	created, err := r.datastore.Create(ctx, answer)
	if err != nil {
		return nil, err
	}
	model := created.(models.Answer)
	return &model, nil
}

func (r *answerRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, answer models.Answer) error {
	_, err := tx.NamedExecContext(ctx,
		`INSERT INTO answers (id, session_id, questionnaire_id, question_id, payload, created_at)
		 VALUES (:id, :session_id, :questionnaire_id, :question_id, :payload, :created_at)`,
		answer)
	return err
}

func (r *answerRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Answer, error) {
	return r.datastore.Select(ctx,
		"SELECT "+answerColumns+" FROM answers WHERE session_id=$1 ORDER BY created_at, id", sessionID)
}

func (r *answerRepo) ListBySessionTx(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]models.Answer, error) {
	var answers []models.Answer
	err := tx.SelectContext(ctx, &answers,
		"SELECT "+answerColumns+" FROM answers WHERE session_id=$1 ORDER BY created_at, id", sessionID)
	if err != nil {
		return nil, err
	}
	return answers, nil
}
