package services

import (
	"fmt"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/pkg/fault"
)

// MaxReachableQuestions caps how many questions a single graph may expose
// from its first question.
const MaxReachableQuestions = 50

// GraphValidator checks a question graph's structural invariants and computes
// its reachable-question set. Pure; consulted at configuration time and on
// every path recompute.
type GraphValidator interface {
	// Reachable returns the set of question ids discoverable from the graph's
	// first question. Fails with a ConfigurationError on a cyclic graph or
	// one whose reachable set exceeds MaxReachableQuestions.
	Reachable(snapshot *models.GraphSnapshot) (map[string]struct{}, error)
	// ValidateStructure checks edge-level invariants: no self-loops, at most
	// one unconditional edge per source, edges only between known questions,
	// choice gates belonging to their edge's source question.
	ValidateStructure(snapshot *models.GraphSnapshot) error
}

type graphValidatorImpl struct{}

// Instantiate the GraphValidator.
func NewGraphValidator() GraphValidator {
	return &graphValidatorImpl{}
}

func (g *graphValidatorImpl) Reachable(snapshot *models.GraphSnapshot) (map[string]struct{}, error) {
	first := snapshot.FirstQuestionID()
	if first == "" {
		return map[string]struct{}{}, nil
	}

	nodes, edgeCount := graphNodes(snapshot)

	if edgeCount == 0 {
		return map[string]struct{}{first: {}}, nil
	}

	// An orphaned first question sits outside the edge-derived graph
	// entirely, so there is nothing to traverse.
	if _, ok := nodes[first]; !ok {
		return map[string]struct{}{first: {}}, nil
	}

	if err := checkAcyclic(snapshot, nodes); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{first: {}}
	queue := []string{first}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range snapshot.EdgesBySource[current] {
			if _, seen := visited[edge.NextQuestionID]; seen {
				continue
			}
			visited[edge.NextQuestionID] = struct{}{}
			if len(visited) > MaxReachableQuestions {
				return nil, fault.NewConfigurationError(snapshot.Graph.ID, "graph too large")
			}
			queue = append(queue, edge.NextQuestionID)
		}
	}

	return visited, nil
}

func (g *graphValidatorImpl) ValidateStructure(snapshot *models.GraphSnapshot) error {
	for source, edges := range snapshot.EdgesBySource {
		unconditional := 0
		for _, edge := range edges {
			if edge.QuestionID == edge.NextQuestionID {
				return fault.NewConfigurationError(snapshot.Graph.ID,
					fmt.Sprintf("edge %s loops question %s onto itself", edge.ID, edge.QuestionID))
			}
			if _, ok := snapshot.Questions[edge.QuestionID]; !ok {
				return fault.NewConfigurationError(snapshot.Graph.ID,
					fmt.Sprintf("edge %s starts at unknown question %s", edge.ID, edge.QuestionID))
			}
			if _, ok := snapshot.Questions[edge.NextQuestionID]; !ok {
				return fault.NewConfigurationError(snapshot.Graph.ID,
					fmt.Sprintf("edge %s targets unknown question %s", edge.ID, edge.NextQuestionID))
			}
			if edge.ChoiceID == nil && edge.Guard == nil {
				unconditional++
			}
			if edge.ChoiceID != nil && !choiceBelongsTo(snapshot, *edge.ChoiceID, source) {
				return fault.NewConfigurationError(snapshot.Graph.ID,
					fmt.Sprintf("edge %s is gated by a choice of another question", edge.ID))
			}
		}
		if unconditional > 1 {
			return fault.NewConfigurationError(snapshot.Graph.ID,
				fmt.Sprintf("question %s has %d unconditional edges", source, unconditional))
		}
	}
	return nil
}

// graphNodes collects every question id mentioned by an edge.
func graphNodes(snapshot *models.GraphSnapshot) (map[string]struct{}, int) {
	nodes := make(map[string]struct{})
	count := 0
	for _, edges := range snapshot.EdgesBySource {
		for _, edge := range edges {
			nodes[edge.QuestionID] = struct{}{}
			nodes[edge.NextQuestionID] = struct{}{}
			count++
		}
	}
	return nodes, count
}

// checkAcyclic runs Kahn's algorithm over the whole edge-derived graph. If a
// topological order cannot consume every node, a cycle exists somewhere.
func checkAcyclic(snapshot *models.GraphSnapshot, nodes map[string]struct{}) error {
	indegree := make(map[string]int, len(nodes))
	for node := range nodes {
		indegree[node] = 0
	}
	for _, edges := range snapshot.EdgesBySource {
		for _, edge := range edges {
			indegree[edge.NextQuestionID]++
		}
	}

	queue := make([]string, 0, len(nodes))
	for node, deg := range indegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}

	processed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++

		for _, edge := range snapshot.EdgesBySource[current] {
			indegree[edge.NextQuestionID]--
			if indegree[edge.NextQuestionID] == 0 {
				queue = append(queue, edge.NextQuestionID)
			}
		}
	}

	if processed != len(nodes) {
		return fault.NewConfigurationError(snapshot.Graph.ID, "graph contains a cycle")
	}
	return nil
}

func choiceBelongsTo(snapshot *models.GraphSnapshot, choiceID, questionID string) bool {
	for _, c := range snapshot.ChoicesByQuestion[questionID] {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}
