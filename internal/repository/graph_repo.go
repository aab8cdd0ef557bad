package repository

import (
	"context"
	"sort"

	"github.com/lib/pq"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/store"
)

const (
	graphColumns    = "id, name, first_question_id"
	questionColumns = "id, question_key, question_type, required, enforce_choices, multiple_answers, min_items, max_items, config"
	choiceColumns   = "id, question_id, payload"
	edgeColumns     = "id, graph_id, question_id, next_question_id, ord, choice_id, guard"
)

// graphMemberQuestions selects every question id a graph touches: edge
// endpoints plus the first question.
const graphMemberQuestions = `
	SELECT question_id FROM edges WHERE graph_id=$1
	UNION SELECT next_question_id FROM edges WHERE graph_id=$1
	UNION SELECT first_question_id FROM question_graphs WHERE id=$1 AND first_question_id IS NOT NULL`

// GraphRepo loads question-graph configuration. LoadSnapshot assembles the
// whole aggregate the pure services walk; the Create methods exist for
// seeding and configuration tooling.
type GraphRepo interface {
	GetByID(ctx context.Context, id string) (*models.QuestionGraph, error)
	LoadSnapshot(ctx context.Context, graphID string) (*models.GraphSnapshot, error)
	CreateGraph(ctx context.Context, graph models.QuestionGraph) (*models.QuestionGraph, error)
	SetFirstQuestion(ctx context.Context, graphID, questionID string) error
	CreateQuestion(ctx context.Context, question models.Question) (*models.Question, error)
	CreateChoice(ctx context.Context, choice models.Choice) (*models.Choice, error)
	CreateEdge(ctx context.Context, edge models.Edge) (*models.Edge, error)
}

type graphRepo struct {
	graphs    store.Datastorer[models.QuestionGraph]
	questions store.Datastorer[models.Question]
	choices   store.Datastorer[models.Choice]
	edges     store.Datastorer[models.Edge]
}

func NewGraphRepo(
	graphs store.Datastorer[models.QuestionGraph],
	questions store.Datastorer[models.Question],
	choices store.Datastorer[models.Choice],
	edges store.Datastorer[models.Edge],
) GraphRepo {
	return &graphRepo{
		graphs:    graphs,
		questions: questions,
		choices:   choices,
		edges:     edges,
	}
}

func (r *graphRepo) GetByID(ctx context.Context, id string) (*models.QuestionGraph, error) {
	return r.graphs.Get(ctx, "SELECT "+graphColumns+" FROM question_graphs WHERE id=$1", id)
}

func (r *graphRepo) LoadSnapshot(ctx context.Context, graphID string) (*models.GraphSnapshot, error) {
	graph, err := r.GetByID(ctx, graphID)
	if err != nil {
		return nil, err
	}

	questions, err := r.questions.Select(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE id IN ("+graphMemberQuestions+")", graphID)
	if err != nil {
		return nil, err
	}

	questionIDs := make([]string, 0, len(questions))
	questionsByID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
		questionsByID[q.ID] = q
	}

	choicesByQuestion := make(map[string][]models.Choice)
	if len(questionIDs) > 0 {
		choices, err := r.choices.Select(ctx,
			"SELECT "+choiceColumns+" FROM choices WHERE question_id = ANY($1)", pq.Array(questionIDs))
		if err != nil {
			return nil, err
		}
		for _, c := range choices {
			choicesByQuestion[c.QuestionID] = append(choicesByQuestion[c.QuestionID], c)
		}
	}

	edges, err := r.edges.Select(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE graph_id=$1", graphID)
	if err != nil {
		return nil, err
	}

	edgesBySource := make(map[string][]models.Edge)
	for _, e := range edges {
		edgesBySource[e.QuestionID] = append(edgesBySource[e.QuestionID], e)
	}
	for source := range edgesBySource {
		siblings := edgesBySource[source]
		sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Ord < siblings[j].Ord })
		edgesBySource[source] = siblings
	}

	return &models.GraphSnapshot{
		Graph:             *graph,
		Questions:         questionsByID,
		ChoicesByQuestion: choicesByQuestion,
		EdgesBySource:     edgesBySource,
	}, nil
}

func (r *graphRepo) CreateGraph(ctx context.Context, graph models.QuestionGraph) (*models.QuestionGraph, error) {
	created, err := r.graphs.Create(ctx, graph)
	if err != nil {
		return nil, err
	}
	model := created.(models.QuestionGraph)
	return &model, nil
}

func (r *graphRepo) SetFirstQuestion(ctx context.Context, graphID, questionID string) error {
	_, err := r.graphs.Base().ExecContext(ctx,
		"UPDATE question_graphs SET first_question_id=$2 WHERE id=$1", graphID, questionID)
	return err
}

func (r *graphRepo) CreateQuestion(ctx context.Context, question models.Question) (*models.Question, error) {
	created, err := r.questions.Create(ctx, question)
	if err != nil {
		return nil, err
	}
	model := created.(models.Question)
	return &model, nil
}

func (r *graphRepo) CreateChoice(ctx context.Context, choice models.Choice) (*models.Choice, error) {
	created, err := r.choices.Create(ctx, choice)
	if err != nil {
		return nil, err
	}
	model := created.(models.Choice)
	return &model, nil
}

func (r *graphRepo) CreateEdge(ctx context.Context, edge models.Edge) (*models.Edge, error) {
	created, err := r.edges.Create(ctx, edge)
	if err != nil {
		return nil, err
	}
	model := created.(models.Edge)
	return &model, nil
}
