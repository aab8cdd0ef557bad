package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/fault"
)

// newSnapshot assembles an in-memory graph aggregate for tests. Edges are
// grouped per source in the order given, so Ord only matters when a test sets
// it explicitly.
func newSnapshot(first string, questions []models.Question, choices []models.Choice, edges []models.Edge) *models.GraphSnapshot {
	graph := models.QuestionGraph{ID: "g1", Name: "test graph"}
	if first != "" {
		graph.FirstQuestionID = &first
	}

	questionsByID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		questionsByID[q.ID] = q
	}

	choicesByQuestion := make(map[string][]models.Choice)
	for _, c := range choices {
		choicesByQuestion[c.QuestionID] = append(choicesByQuestion[c.QuestionID], c)
	}

	edgesBySource := make(map[string][]models.Edge)
	for _, e := range edges {
		edgesBySource[e.QuestionID] = append(edgesBySource[e.QuestionID], e)
	}

	return &models.GraphSnapshot{
		Graph:             graph,
		Questions:         questionsByID,
		ChoicesByQuestion: choicesByQuestion,
		EdgesBySource:     edgesBySource,
	}
}

func textQuestion(id string) models.Question {
	return models.Question{ID: id, Type: models.FieldTypeText}
}

func TestReachable_NoFirstQuestion(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("", []models.Question{textQuestion("q1")}, nil, nil)

	reachable, err := v.Reachable(snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reachable) != 0 {
		t.Errorf("expected empty reachable set, got %v", reachable)
	}
}

func TestReachable_SingleQuestionNoEdges(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1", []models.Question{textQuestion("q1")}, nil, nil)

	reachable, err := v.Reachable(snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reachable) != 1 {
		t.Fatalf("expected only the first question, got %v", reachable)
	}
	if _, ok := reachable["q1"]; !ok {
		t.Errorf("expected q1 to be reachable")
	}
}

func TestReachable_OrphanedFirstQuestion(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q2", NextQuestionID: "q3"},
		})

	reachable, err := v.Reachable(snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reachable) != 1 {
		t.Fatalf("expected only the first question, got %v", reachable)
	}
	if _, ok := reachable["q1"]; !ok {
		t.Errorf("expected q1 to be reachable")
	}
}

func TestReachable_Diamond(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3"), textQuestion("q4")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q3", Guard: ptrOf("value > 0")},
			{ID: "e3", GraphID: "g1", QuestionID: "q2", NextQuestionID: "q4"},
			{ID: "e4", GraphID: "g1", QuestionID: "q3", NextQuestionID: "q4"},
		})

	reachable, err := v.Reachable(snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reachable) != 4 {
		t.Errorf("expected 4 reachable questions, got %d (%v)", len(reachable), reachable)
	}
}

func TestReachable_ExcludesDisconnectedBranch(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3"), textQuestion("q4")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q3", NextQuestionID: "q4"},
		})

	reachable, err := v.Reachable(snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reachable["q3"]; ok {
		t.Errorf("q3 is disconnected from q1, should not be reachable")
	}
	if _, ok := reachable["q4"]; ok {
		t.Errorf("q4 is disconnected from q1, should not be reachable")
	}
}

func TestReachable_Cycle(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q2", NextQuestionID: "q3"},
			{ID: "e3", GraphID: "g1", QuestionID: "q3", NextQuestionID: "q2", Guard: ptrOf("value == 1")},
		})

	_, err := v.Reachable(snapshot)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if !fault.IsConfigurationError(err) {
		t.Errorf("expected a configuration error, got %T", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("expected cycle in error message, got %q", err.Error())
	}
}

func TestReachable_CycleOffTheMainPath(t *testing.T) {
	v := NewGraphValidator()
	// q1 -> q2 terminates; the cycle lives on a branch BFS never takes.
	// Acyclicity is still graph-wide, so this configuration must fail.
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3"), textQuestion("q4")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q3", NextQuestionID: "q4"},
			{ID: "e3", GraphID: "g1", QuestionID: "q4", NextQuestionID: "q3"},
		})

	_, err := v.Reachable(snapshot)
	if err == nil {
		t.Fatal("expected a cycle error for the detached cycle")
	}
	if !fault.IsConfigurationError(err) {
		t.Errorf("expected a configuration error, got %T", err)
	}
}

func TestReachable_OverQuestionCap(t *testing.T) {
	v := NewGraphValidator()

	count := MaxReachableQuestions + 2
	questions := make([]models.Question, 0, count)
	edges := make([]models.Edge, 0, count-1)
	for i := 1; i <= count; i++ {
		questions = append(questions, textQuestion(fmt.Sprintf("q%d", i)))
	}
	for i := 1; i < count; i++ {
		edges = append(edges, models.Edge{
			ID:             fmt.Sprintf("e%d", i),
			GraphID:        "g1",
			QuestionID:     fmt.Sprintf("q%d", i),
			NextQuestionID: fmt.Sprintf("q%d", i+1),
		})
	}

	_, err := v.Reachable(newSnapshot("q1", questions, nil, edges))
	if err == nil {
		t.Fatal("expected an error for a graph over the question cap")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large in error message, got %q", err.Error())
	}
}

func TestReachable_AtQuestionCap(t *testing.T) {
	v := NewGraphValidator()

	questions := make([]models.Question, 0, MaxReachableQuestions)
	edges := make([]models.Edge, 0, MaxReachableQuestions-1)
	for i := 1; i <= MaxReachableQuestions; i++ {
		questions = append(questions, textQuestion(fmt.Sprintf("q%d", i)))
	}
	for i := 1; i < MaxReachableQuestions; i++ {
		edges = append(edges, models.Edge{
			ID:             fmt.Sprintf("e%d", i),
			GraphID:        "g1",
			QuestionID:     fmt.Sprintf("q%d", i),
			NextQuestionID: fmt.Sprintf("q%d", i+1),
		})
	}

	reachable, err := v.Reachable(newSnapshot("q1", questions, nil, edges))
	if err != nil {
		t.Fatalf("a graph at the cap must pass, got: %v", err)
	}
	if len(reachable) != MaxReachableQuestions {
		t.Errorf("expected %d reachable questions, got %d", MaxReachableQuestions, len(reachable))
	}
}

func TestValidateStructure_Valid(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3")},
		[]models.Choice{
			{ID: "c1", QuestionID: "q1", Payload: []byte(`"yes"`)},
		},
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2", ChoiceID: ptrOf("c1")},
			{ID: "e2", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q3"},
		})

	if err := v.ValidateStructure(snapshot); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStructure_SelfLoop(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q1"},
		})

	err := v.ValidateStructure(snapshot)
	if err == nil || !strings.Contains(err.Error(), "onto itself") {
		t.Errorf("expected a self-loop error, got %v", err)
	}
}

func TestValidateStructure_UnknownTarget(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q-ghost"},
		})

	err := v.ValidateStructure(snapshot)
	if err == nil || !strings.Contains(err.Error(), "unknown question") {
		t.Errorf("expected an unknown question error, got %v", err)
	}
}

func TestValidateStructure_TwoUnconditionalEdges(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2"), textQuestion("q3")},
		nil,
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2"},
			{ID: "e2", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q3"},
		})

	err := v.ValidateStructure(snapshot)
	if err == nil || !strings.Contains(err.Error(), "unconditional") {
		t.Errorf("expected an unconditional edge error, got %v", err)
	}
}

func TestValidateStructure_ForeignChoiceGate(t *testing.T) {
	v := NewGraphValidator()
	snapshot := newSnapshot("q1",
		[]models.Question{textQuestion("q1"), textQuestion("q2")},
		[]models.Choice{
			{ID: "c2", QuestionID: "q2", Payload: []byte(`"no"`)},
		},
		[]models.Edge{
			{ID: "e1", GraphID: "g1", QuestionID: "q1", NextQuestionID: "q2", ChoiceID: ptrOf("c2")},
		})

	err := v.ValidateStructure(snapshot)
	if err == nil || !strings.Contains(err.Error(), "another question") {
		t.Errorf("expected a foreign choice error, got %v", err)
	}
}

func ptrOf[T any](v T) *T {
	return &v
}
