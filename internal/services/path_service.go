package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/internal/pkg/cache"
	"github.com/paulexconde/followup/pkg/fault"
)

// PathComputer walks a session's question graph. Every computation re-derives
// state from scratch, so calls are idempotent and safe to repeat.
type PathComputer interface {
	// NextQuestion picks the successor of questionID for the given recorded
	// answer: first a choice-gated edge whose payload equals the answer, then
	// a guard edge whose expression holds, then the unconditional edge. Nil
	// means the path terminates here.
	NextQuestion(snapshot *models.GraphSnapshot, questionID string, payload json.RawMessage) (*models.Question, error)
	// ComputePath rebuilds the full walk state for the given recorded
	// answers, ordered oldest first (the latest answer per question wins).
	ComputePath(snapshot *models.GraphSnapshot, answers []models.Answer) (*models.PathResult, error)
}

type pathComputerImpl struct {
	graphs    GraphValidator
	validator AnswerValidator
	programs  *cache.ProgramCache
}

// Instantiate the PathComputer.
func NewPathComputer(graphs GraphValidator, validator AnswerValidator, programs *cache.ProgramCache) PathComputer {
	return &pathComputerImpl{
		graphs:    graphs,
		validator: validator,
		programs:  programs,
	}
}

func (p *pathComputerImpl) NextQuestion(snapshot *models.GraphSnapshot, questionID string, payload json.RawMessage) (*models.Question, error) {
	edges := snapshot.EdgesBySource[questionID]
	if len(edges) == 0 {
		return nil, nil
	}

	value, err := decodePayload(payload)
	if err != nil {
		return nil, fault.NewValidationError(questionID, RulePayload, "recorded payload is not valid JSON")
	}

	for _, edge := range edges {
		if edge.ChoiceID == nil {
			continue
		}
		choice, ok := snapshot.ChoiceByID(*edge.ChoiceID)
		if !ok {
			return nil, fault.NewConfigurationError(snapshot.Graph.ID,
				fmt.Sprintf("edge %s references unknown choice %s", edge.ID, *edge.ChoiceID))
		}
		choiceValue, err := decodePayload(choice.Payload)
		if err != nil {
			return nil, fault.NewConfigurationError(snapshot.Graph.ID,
				fmt.Sprintf("choice %s carries invalid payload", choice.ID))
		}
		if reflect.DeepEqual(value, choiceValue) {
			return p.target(snapshot, edge)
		}
	}

	for _, edge := range edges {
		if edge.ChoiceID != nil || edge.Guard == nil {
			continue
		}
		match, err := evaluateExpression(p.programs, "guard:"+edge.ID, *edge.Guard, map[string]any{"value": value})
		if err != nil {
			return nil, fault.NewConfigurationError(snapshot.Graph.ID,
				fmt.Sprintf("edge %s guard failed: %v", edge.ID, err))
		}
		if match {
			return p.target(snapshot, edge)
		}
	}

	for _, edge := range edges {
		if edge.ChoiceID == nil && edge.Guard == nil {
			return p.target(snapshot, edge)
		}
	}

	return nil, nil
}

func (p *pathComputerImpl) target(snapshot *models.GraphSnapshot, edge models.Edge) (*models.Question, error) {
	question, ok := snapshot.Questions[edge.NextQuestionID]
	if !ok {
		return nil, fault.NewConfigurationError(snapshot.Graph.ID,
			fmt.Sprintf("edge %s targets unknown question %s", edge.ID, edge.NextQuestionID))
	}
	return &question, nil
}

func (p *pathComputerImpl) ComputePath(snapshot *models.GraphSnapshot, answers []models.Answer) (*models.PathResult, error) {
	if err := p.graphs.ValidateStructure(snapshot); err != nil {
		return nil, err
	}
	reachable, err := p.graphs.Reachable(snapshot)
	if err != nil {
		return nil, err
	}

	latest := latestAnswerPerQuestion(answers)

	result := &models.PathResult{
		PathQuestionIDs:       []string{},
		AnsweredQuestionIDs:   []string{},
		UnansweredQuestionIDs: []string{},
		ValidationErrors:      map[string]string{},
	}

	first := snapshot.FirstQuestionID()
	if first == "" {
		result.Terminated = true
		result.CanFreeze = true
		result.Progress = 100
		return result, nil
	}

	current := first
	for steps := 0; ; steps++ {
		// Reachable already rejected cycles; this guard only protects against
		// a snapshot mutated mid-flight.
		if steps > MaxReachableQuestions {
			return nil, fault.NewConfigurationError(snapshot.Graph.ID, "path exceeds the question cap")
		}

		result.PathQuestionIDs = append(result.PathQuestionIDs, current)

		answer, answered := latest[current]
		if !answered {
			next := current
			result.NextQuestionID = &next
			break
		}
		result.AnsweredQuestionIDs = append(result.AnsweredQuestionIDs, current)

		nextQuestion, err := p.NextQuestion(snapshot, current, answer.Payload)
		if err != nil {
			return nil, err
		}
		if nextQuestion == nil {
			result.Terminated = true
			break
		}
		current = nextQuestion.ID
	}

	frontier := result.PathQuestionIDs[len(result.PathQuestionIDs)-1]
	result.UnansweredQuestionIDs = p.unansweredFromFrontier(snapshot, reachable, latest, frontier)

	for questionID, answer := range latest {
		question, ok := snapshot.Questions[questionID]
		if !ok {
			continue
		}
		if _, err := p.validator.Validate(question, snapshot.ChoicesByQuestion[questionID], answer.Payload); err != nil {
			result.ValidationErrors[questionID] = err.Error()
		}
	}

	requiredUnanswered := false
	for _, questionID := range result.UnansweredQuestionIDs {
		if snapshot.Questions[questionID].Required {
			requiredUnanswered = true
			break
		}
	}

	result.CanFreeze = result.Terminated && !requiredUnanswered && len(result.ValidationErrors) == 0

	progress := completionFromReachable(snapshot, reachable, latest)
	percent, err := progress.CompletionPercent()
	if err != nil {
		return nil, err
	}
	result.Progress = percent

	return result, nil
}

// unansweredFromFrontier restricts the reachable-minus-answered set to
// questions still discoverable from the current path frontier.
func (p *pathComputerImpl) unansweredFromFrontier(snapshot *models.GraphSnapshot, reachable map[string]struct{}, latest map[string]models.Answer, frontier string) []string {
	visited := map[string]struct{}{frontier: {}}
	queue := []string{frontier}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range snapshot.EdgesBySource[current] {
			if _, seen := visited[edge.NextQuestionID]; seen {
				continue
			}
			visited[edge.NextQuestionID] = struct{}{}
			queue = append(queue, edge.NextQuestionID)
		}
	}

	unanswered := []string{}
	for questionID := range visited {
		if _, ok := reachable[questionID]; !ok {
			continue
		}
		if _, answered := latest[questionID]; answered {
			continue
		}
		unanswered = append(unanswered, questionID)
	}
	sort.Strings(unanswered)
	return unanswered
}

// latestAnswerPerQuestion keeps the most recent answer for each question;
// answers arrive ordered oldest first so later rows simply overwrite.
func latestAnswerPerQuestion(answers []models.Answer) map[string]models.Answer {
	latest := make(map[string]models.Answer, len(answers))
	for _, answer := range answers {
		latest[answer.QuestionID] = answer
	}
	return latest
}

func completionFromReachable(snapshot *models.GraphSnapshot, reachable map[string]struct{}, latest map[string]models.Answer) Completion {
	var completion Completion
	for questionID := range reachable {
		question, ok := snapshot.Questions[questionID]
		if !ok || !question.Required {
			continue
		}
		completion.RequiredTotal++
		if _, answered := latest[questionID]; answered {
			completion.RequiredAnswered++
		}
	}
	return completion
}
