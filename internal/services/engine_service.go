package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/internal/pkg/cache"
	"github.com/paulexconde/followup/internal/pkg/paginator"
	"github.com/paulexconde/followup/internal/repository"
	"github.com/paulexconde/followup/pkg/fault"
)

// DefaultSessionDuration is applied when a session is created without an
// explicit answering window.
const DefaultSessionDuration = 72 * time.Hour

// CreateSessionInput carries everything needed to open a session.
type CreateSessionInput struct {
	QuestionnaireID string
	CaseID          *string
	Duration        time.Duration
	SubmitBefore    *time.Time
}

// EngineService exposes the questionnaire engine's operations over durable
// state. Each call is single-request logic: state lives in the store between
// calls and expiry is derived lazily against the supplied "now".
type EngineService interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	// GetSession fails with ErrNotFound, ErrSessionExpired or
	// ErrSessionFrozen; a session is only retrievable while it can still
	// accept writes.
	GetSession(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)
	// SubmitAnswer validates and appends an answer, then recomputes the path
	// inside the same transaction. Returns the stored answer and the next
	// question, nil when the path terminated.
	SubmitAnswer(ctx context.Context, sessionID, questionID string, payload json.RawMessage, now time.Time) (*models.Answer, *models.Question, error)
	GetPath(ctx context.Context, sessionID string) (*models.PathResult, error)
	// Freeze performs the terminal transition. Re-checks the write gate and
	// freeze eligibility under a row lock so concurrent attempts cannot both
	// succeed.
	Freeze(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)
	ListSessionsByCase(ctx context.Context, caseID string, page, limit int) (*paginator.PaginatedResponse[models.Session], error)
}

type engineServiceImpl struct {
	questionnaires repository.QuestionnaireRepo
	graphs         repository.GraphRepo
	sessions       repository.SessionRepo
	answers        repository.AnswerRepo

	lifecycle SessionLifecycle
	validator AnswerValidator
	paths     PathComputer
	checker   GraphValidator

	pager   paginator.Paginator[models.Session]
	configs cache.ConfigCache
}

// Instantiate the EngineService. configs may be nil; snapshots are then
// loaded from the store on every call.
func NewEngineService(
	questionnaires repository.QuestionnaireRepo,
	graphs repository.GraphRepo,
	sessions repository.SessionRepo,
	answers repository.AnswerRepo,
	lifecycle SessionLifecycle,
	validator AnswerValidator,
	paths PathComputer,
	checker GraphValidator,
	pager paginator.Paginator[models.Session],
	configs cache.ConfigCache,
) EngineService {
	return &engineServiceImpl{
		questionnaires: questionnaires,
		graphs:         graphs,
		sessions:       sessions,
		answers:        answers,
		lifecycle:      lifecycle,
		validator:      validator,
		paths:          paths,
		checker:        checker,
		pager:          pager,
		configs:        configs,
	}
}

func (s *engineServiceImpl) CreateSession(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	questionnaire, err := s.questionnaires.GetByID(ctx, input.QuestionnaireID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.loadSnapshot(ctx, questionnaire.GraphID)
	if err != nil {
		return nil, err
	}

	// Refuse to open sessions against broken configuration.
	if err := s.checker.ValidateStructure(snapshot); err != nil {
		return nil, err
	}
	if _, err := s.checker.Reachable(snapshot); err != nil {
		return nil, err
	}

	duration := input.Duration
	if duration <= 0 {
		duration = DefaultSessionDuration
	}

	session := models.Session{
		ID:              uuid.NewString(),
		QuestionnaireID: questionnaire.ID,
		DurationSecs:    int64(duration / time.Second),
		SubmitBefore:    input.SubmitBefore,
		CaseID:          input.CaseID,
	}

	return s.sessions.Create(ctx, session)
}

func (s *engineServiceImpl) GetSession(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.EnsureWritable(*session, now); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *engineServiceImpl) SubmitAnswer(ctx context.Context, sessionID, questionID string, payload json.RawMessage, now time.Time) (*models.Answer, *models.Question, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.lifecycle.EnsureWritable(*session, now); err != nil {
		return nil, nil, err
	}

	questionnaire, err := s.questionnaires.GetByID(ctx, session.QuestionnaireID)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := s.loadSnapshot(ctx, questionnaire.GraphID)
	if err != nil {
		return nil, nil, err
	}
	reachable, err := s.checker.Reachable(snapshot)
	if err != nil {
		return nil, nil, err
	}

	question, ok := snapshot.Questions[questionID]
	if !ok {
		return nil, nil, fault.ErrNotFound
	}
	if _, ok := reachable[questionID]; !ok {
		return nil, nil, fault.ErrNotFound
	}

	if _, err := s.validator.Validate(question, snapshot.ChoicesByQuestion[questionID], payload); err != nil {
		return nil, nil, err
	}

	answer := models.Answer{
		ID:         uuid.NewString(),
		SessionID:  &session.ID,
		QuestionID: questionID,
		Payload:    payload,
		CreatedAt:  now,
	}

	// The insert, the answer re-read and the path recompute share one
	// transaction so this request never mixes old and new state.
	tx, err := s.sessions.Base().BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	locked, err := s.sessions.GetByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err = s.lifecycle.EnsureWritable(*locked, now); err != nil {
		return nil, nil, err
	}

	if locked.StartedAt == nil {
		if err = s.sessions.Start(ctx, tx, sessionID, now); err != nil {
			return nil, nil, err
		}
	}

	if err = s.answers.CreateTx(ctx, tx, answer); err != nil {
		return nil, nil, err
	}

	recorded, err := s.answers.ListBySessionTx(ctx, tx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.paths.ComputePath(snapshot, recorded)
	if err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, err
	}

	var next *models.Question
	if result.NextQuestionID != nil {
		if q, ok := snapshot.Questions[*result.NextQuestionID]; ok {
			next = &q
		}
	}

	return &answer, next, nil
}

func (s *engineServiceImpl) GetPath(ctx context.Context, sessionID string) (*models.PathResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questionnaire, err := s.questionnaires.GetByID(ctx, session.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.loadSnapshot(ctx, questionnaire.GraphID)
	if err != nil {
		return nil, err
	}
	recorded, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.paths.ComputePath(snapshot, recorded)
}

func (s *engineServiceImpl) Freeze(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questionnaire, err := s.questionnaires.GetByID(ctx, session.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.loadSnapshot(ctx, questionnaire.GraphID)
	if err != nil {
		return nil, err
	}

	tx, err := s.sessions.Base().BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// The gate and the eligibility check run under the row lock; a
	// concurrent freeze serializes here and finds frozen already set.
	locked, err := s.sessions.GetByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if locked.Frozen {
		err = fault.ErrSessionFrozen
		return nil, err
	}
	if s.lifecycle.IsExpired(*locked, now) {
		err = fault.ErrSessionExpired
		return nil, err
	}

	recorded, err := s.answers.ListBySessionTx(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.paths.ComputePath(snapshot, recorded)
	if err != nil {
		return nil, err
	}
	if !result.CanFreeze {
		err = fault.ErrNotEligible
		return nil, err
	}

	if err = s.sessions.MarkFrozen(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	locked.Frozen = true
	return locked, nil
}

func (s *engineServiceImpl) ListSessionsByCase(ctx context.Context, caseID string, page, limit int) (*paginator.PaginatedResponse[models.Session], error) {
	query := "SELECT " + repository.SessionColumns +
		" FROM sessions WHERE case_id=$1 ORDER BY started_at DESC NULLS LAST, id"
	return s.pager.PaginateQuery(ctx, query, []any{caseID}, page, limit)
}

func (s *engineServiceImpl) loadSnapshot(ctx context.Context, graphID string) (*models.GraphSnapshot, error) {
	if s.configs != nil {
		if snapshot, err := s.configs.GetSnapshot(ctx, graphID); err == nil && snapshot != nil {
			return snapshot, nil
		}
	}

	snapshot, err := s.graphs.LoadSnapshot(ctx, graphID)
	if err != nil {
		return nil, err
	}

	if s.configs != nil {
		// Best effort; a cold cache only costs the next reload.
		_ = s.configs.SetSnapshot(ctx, snapshot)
	}

	return snapshot, nil
}
