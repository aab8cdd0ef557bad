package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/internal/pkg/cache"
	"github.com/paulexconde/followup/internal/pkg/paginator"
	"github.com/paulexconde/followup/pkg/fault"
)

var errNoDatabase = errors.New("no database in unit tests")

type fakeQuestionnaireRepo struct {
	questionnaires map[string]models.Questionnaire
}

func (r *fakeQuestionnaireRepo) Create(_ context.Context, questionnaire models.Questionnaire) (*models.Questionnaire, error) {
	r.questionnaires[questionnaire.ID] = questionnaire
	return &questionnaire, nil
}

func (r *fakeQuestionnaireRepo) GetByID(_ context.Context, id string) (*models.Questionnaire, error) {
	questionnaire, ok := r.questionnaires[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return &questionnaire, nil
}

func (r *fakeQuestionnaireRepo) List(_ context.Context) ([]models.Questionnaire, error) {
	out := make([]models.Questionnaire, 0, len(r.questionnaires))
	for _, q := range r.questionnaires {
		out = append(out, q)
	}
	return out, nil
}

type fakeGraphRepo struct {
	snapshot *models.GraphSnapshot
}

func (r *fakeGraphRepo) GetByID(_ context.Context, id string) (*models.QuestionGraph, error) {
	if r.snapshot == nil || r.snapshot.Graph.ID != id {
		return nil, fault.ErrNotFound
	}
	graph := r.snapshot.Graph
	return &graph, nil
}

func (r *fakeGraphRepo) LoadSnapshot(_ context.Context, graphID string) (*models.GraphSnapshot, error) {
	if r.snapshot == nil || r.snapshot.Graph.ID != graphID {
		return nil, fault.ErrNotFound
	}
	return r.snapshot, nil
}

func (r *fakeGraphRepo) CreateGraph(_ context.Context, graph models.QuestionGraph) (*models.QuestionGraph, error) {
	return nil, errNoDatabase
}

func (r *fakeGraphRepo) SetFirstQuestion(_ context.Context, _, _ string) error {
	return errNoDatabase
}

func (r *fakeGraphRepo) CreateQuestion(_ context.Context, _ models.Question) (*models.Question, error) {
	return nil, errNoDatabase
}

func (r *fakeGraphRepo) CreateChoice(_ context.Context, _ models.Choice) (*models.Choice, error) {
	return nil, errNoDatabase
}

func (r *fakeGraphRepo) CreateEdge(_ context.Context, _ models.Edge) (*models.Edge, error) {
	return nil, errNoDatabase
}

type fakeSessionRepo struct {
	sessions map[string]models.Session
}

func (r *fakeSessionRepo) Create(_ context.Context, session models.Session) (*models.Session, error) {
	r.sessions[session.ID] = session
	return &session, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return &session, nil
}

func (r *fakeSessionRepo) GetByIDForUpdate(_ context.Context, _ *sqlx.Tx, _ string) (*models.Session, error) {
	return nil, errNoDatabase
}

func (r *fakeSessionRepo) Start(_ context.Context, _ *sqlx.Tx, _ string, _ time.Time) error {
	return errNoDatabase
}

func (r *fakeSessionRepo) MarkFrozen(_ context.Context, _ *sqlx.Tx, _ string) error {
	return errNoDatabase
}

func (r *fakeSessionRepo) Base() *sqlx.DB {
	return nil
}

type fakeAnswerRepo struct {
	answers []models.Answer
}

func (r *fakeAnswerRepo) Create(_ context.Context, answer models.Answer) (*models.Answer, error) {
	r.answers = append(r.answers, answer)
	return &answer, nil
}

func (r *fakeAnswerRepo) CreateTx(_ context.Context, _ *sqlx.Tx, _ models.Answer) error {
	return errNoDatabase
}

func (r *fakeAnswerRepo) ListBySession(_ context.Context, sessionID string) ([]models.Answer, error) {
	out := []models.Answer{}
	for _, a := range r.answers {
		if a.SessionID != nil && *a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAnswerRepo) ListBySessionTx(_ context.Context, _ *sqlx.Tx, _ string) ([]models.Answer, error) {
	return nil, errNoDatabase
}

type fakePager struct {
	response *paginator.PaginatedResponse[models.Session]
}

func (p *fakePager) PaginateQuery(_ context.Context, _ string, _ []any, _, _ int) (*paginator.PaginatedResponse[models.Session], error) {
	return p.response, nil
}

type engineFixture struct {
	engine   EngineService
	sessions *fakeSessionRepo
	answers  *fakeAnswerRepo
	graphs   *fakeGraphRepo
}

func newEngineFixture(snapshot *models.GraphSnapshot) *engineFixture {
	questionnaires := &fakeQuestionnaireRepo{
		questionnaires: map[string]models.Questionnaire{
			"qs1": {ID: "qs1", Name: "Incident follow-up", GraphID: snapshot.Graph.ID},
		},
	}
	graphs := &fakeGraphRepo{snapshot: snapshot}
	sessions := &fakeSessionRepo{sessions: map[string]models.Session{}}
	answers := &fakeAnswerRepo{}

	programs := cache.NewProgramCache()
	validator := NewAnswerValidator(programs)

	engine := NewEngineService(
		questionnaires,
		graphs,
		sessions,
		answers,
		NewSessionLifecycle(),
		validator,
		NewPathComputer(NewGraphValidator(), validator, programs),
		NewGraphValidator(),
		&fakePager{},
		nil,
	)

	return &engineFixture{engine: engine, sessions: sessions, answers: answers, graphs: graphs}
}

func TestCreateSession_AppliesDefaultDuration(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())

	session, err := f.engine.CreateSession(context.Background(), CreateSessionInput{QuestionnaireID: "qs1"})
	require.NoError(t, err)

	assert.Equal(t, int64(DefaultSessionDuration/time.Second), session.DurationSecs)
	assert.Nil(t, session.StartedAt, "a fresh session must not be started")
	assert.False(t, session.Frozen)
	assert.Contains(t, f.sessions.sessions, session.ID)
}

func TestCreateSession_UnknownQuestionnaire(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())

	_, err := f.engine.CreateSession(context.Background(), CreateSessionInput{QuestionnaireID: "ghost"})
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestCreateSession_RejectsBrokenGraph(t *testing.T) {
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q3"},
		})
	f := newEngineFixture(snapshot)

	_, err := f.engine.CreateSession(context.Background(), CreateSessionInput{QuestionnaireID: "qs1"})
	assert.True(t, fault.IsConfigurationError(err), "expected a configuration error, got %v", err)
}

func TestGetSession_Gates(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Minute)

	f.sessions.sessions["open"] = models.Session{ID: "open", QuestionnaireID: "qs1", DurationSecs: 3600}
	f.sessions.sessions["frozen"] = models.Session{ID: "frozen", QuestionnaireID: "qs1", DurationSecs: 3600, Frozen: true}
	f.sessions.sessions["expired"] = models.Session{ID: "expired", QuestionnaireID: "qs1", DurationSecs: 3600, SubmitBefore: &deadline}

	session, err := f.engine.GetSession(context.Background(), "open", now)
	require.NoError(t, err)
	assert.Equal(t, "open", session.ID)

	_, err = f.engine.GetSession(context.Background(), "frozen", now)
	assert.ErrorIs(t, err, fault.ErrSessionFrozen)

	_, err = f.engine.GetSession(context.Background(), "expired", now)
	assert.ErrorIs(t, err, fault.ErrSessionExpired)

	_, err = f.engine.GetSession(context.Background(), "ghost", now)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestSubmitAnswer_RejectsBeforeTouchingStorage(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f.sessions.sessions["s1"] = models.Session{ID: "s1", QuestionnaireID: "qs1", DurationSecs: 3600}
	f.sessions.sessions["frozen"] = models.Session{ID: "frozen", QuestionnaireID: "qs1", DurationSecs: 3600, Frozen: true}

	_, _, err := f.engine.SubmitAnswer(context.Background(), "frozen", "q1", json.RawMessage(`"phone"`), now)
	assert.ErrorIs(t, err, fault.ErrSessionFrozen)

	_, _, err = f.engine.SubmitAnswer(context.Background(), "s1", "q-ghost", json.RawMessage(`"phone"`), now)
	assert.ErrorIs(t, err, fault.ErrNotFound)

	_, _, err = f.engine.SubmitAnswer(context.Background(), "s1", "q1", json.RawMessage(`"fax"`), now)
	assert.True(t, fault.IsValidationError(err), "expected a validation error, got %v", err)
}

func TestSubmitAnswer_RejectsUnreachableQuestion(t *testing.T) {
	// q9 exists in configuration but no edge from q1 ever leads to it.
	snapshot := diamondSnapshot()
	snapshot.Questions["q9"] = models.Question{ID: "q9", Type: models.FieldTypeText}

	f := newEngineFixture(snapshot)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f.sessions.sessions["s1"] = models.Session{ID: "s1", QuestionnaireID: "qs1", DurationSecs: 3600}

	_, _, err := f.engine.SubmitAnswer(context.Background(), "s1", "q9", json.RawMessage(`"hi"`), now)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestGetPath_UsesRecordedAnswers(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())
	sessionID := "s1"
	f.sessions.sessions[sessionID] = models.Session{ID: sessionID, QuestionnaireID: "qs1", DurationSecs: 3600}
	f.answers.answers = []models.Answer{
		{ID: "a1", SessionID: &sessionID, QuestionID: "q1", Payload: json.RawMessage(`"email"`)},
	}

	result, err := f.engine.GetPath(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, []string{"q1", "q3"}, result.PathQuestionIDs)
	require.NotNil(t, result.NextQuestionID)
	assert.Equal(t, "q3", *result.NextQuestionID)
}

func TestGetPath_FrozenSessionStillReadable(t *testing.T) {
	f := newEngineFixture(diamondSnapshot())
	f.sessions.sessions["s1"] = models.Session{ID: "s1", QuestionnaireID: "qs1", DurationSecs: 3600, Frozen: true}

	result, err := f.engine.GetPath(context.Background(), "s1")
	require.NoError(t, err, "path inspection is a read, the write gate must not apply")
	assert.NotNil(t, result)
}
