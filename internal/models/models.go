package models

import (
	"encoding/json"
	"time"
)

// FieldType tags the shape of payload a Question accepts.
type FieldType string

const (
	FieldTypeText           FieldType = "text"
	FieldTypeInteger        FieldType = "integer"
	FieldTypeDate           FieldType = "date"
	FieldTypeTime           FieldType = "time"
	FieldTypeSingleChoice   FieldType = "single_choice"
	FieldTypeMultiSelect    FieldType = "multi_select"
	FieldTypeSelectedObject FieldType = "selected_object"
)

// Questionnaire selects one question graph plus a flow classification tag.
// The flow tag is opaque to the engine. Configuration data; static at runtime.
type Questionnaire struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	GraphID string `db:"graph_id" json:"graph_id"`
	Flow    string `db:"flow" json:"flow"`
}

func (q Questionnaire) ToModel(id string) any {
	q.ID = id
	return q
}

// QuestionGraph is a directed, acyclic, size-bounded graph of questions.
type QuestionGraph struct {
	ID              string  `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	FirstQuestionID *string `db:"first_question_id" json:"first_question_id,omitempty"`
}

func (g QuestionGraph) ToModel(id string) any {
	g.ID = id
	return g
}

type Question struct {
	ID              string          `db:"id" json:"id"`
	Key             *string         `db:"question_key" json:"key,omitempty"`
	Type            FieldType       `db:"question_type" json:"type"`
	Required        bool            `db:"required" json:"required"`
	EnforceChoices  bool            `db:"enforce_choices" json:"enforce_choices"`
	MultipleAnswers bool            `db:"multiple_answers" json:"multiple_answers"`
	MinItems        *int            `db:"min_items" json:"min_items,omitempty"`
	MaxItems        *int            `db:"max_items" json:"max_items,omitempty"`
	Config          json.RawMessage `db:"config" json:"config,omitempty"`
}

func (q Question) ToModel(id string) any {
	q.ID = id
	return q
}

// QuestionConfig is the free-form extra configuration a Question may carry.
// Rule is an optional boolean expression over `value`, checked after the
// field-type contract passes.
type QuestionConfig struct {
	Rule        string `json:"rule,omitempty"`
	RuleMessage string `json:"rule_message,omitempty"`
}

// DecodeConfig parses the question's extra configuration. A question with no
// configuration decodes to the zero value.
func (q Question) DecodeConfig() (QuestionConfig, error) {
	var cfg QuestionConfig
	if len(q.Config) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(q.Config, &cfg)
	return cfg, err
}

// Choice is one selectable value attached to a question. Its payload gates
// edges and, when enforcement is on, bounds the accepted answers.
type Choice struct {
	ID         string          `db:"id" json:"id"`
	QuestionID string          `db:"question_id" json:"question_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
}

func (c Choice) ToModel(id string) any {
	c.ID = id
	return c
}

// Edge is a directed link between two questions of one graph. A nil ChoiceID
// means "unconditional successor"; a non-nil one means the edge is only taken
// when the recorded answer selects that choice. Guard optionally carries a
// boolean expression over the recorded answer, checked after choice matching.
type Edge struct {
	ID             string  `db:"id" json:"id"`
	GraphID        string  `db:"graph_id" json:"graph_id"`
	QuestionID     string  `db:"question_id" json:"question_id"`
	NextQuestionID string  `db:"next_question_id" json:"next_question_id"`
	Ord            int     `db:"ord" json:"ord"`
	ChoiceID       *string `db:"choice_id" json:"choice_id,omitempty"`
	Guard          *string `db:"guard" json:"guard,omitempty"`
}

func (e Edge) ToModel(id string) any {
	e.ID = id
	return e
}

// SessionState is the derived lifecycle state of a session. Only Frozen is
// stored; the rest are computed from timestamps at read time.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionFrozen  SessionState = "frozen"
)

// Session is one bounded-lifetime walk through a question graph. StartedAt
// stays nil until the first answer lands. CaseID is a loose reference to an
// external case record the engine never inspects.
type Session struct {
	ID              string     `db:"id" json:"id"`
	QuestionnaireID string     `db:"questionnaire_id" json:"questionnaire_id"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	DurationSecs    int64      `db:"duration_secs" json:"duration_secs"`
	SubmitBefore    *time.Time `db:"submit_before" json:"submit_before,omitempty"`
	Frozen          bool       `db:"frozen" json:"frozen"`
	CaseID          *string    `db:"case_id" json:"case_id,omitempty"`
}

func (s Session) ToModel(id string) any {
	s.ID = id
	return s
}

// Duration returns the session's answering window.
func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationSecs) * time.Second
}

// Answer records one submitted payload for one question. Owned by exactly one
// of session or questionnaire. Append-only: a changed answer is a new row and
// path computation uses the most recent one per question.
type Answer struct {
	ID              string          `db:"id" json:"id"`
	SessionID       *string         `db:"session_id" json:"session_id,omitempty"`
	QuestionnaireID *string         `db:"questionnaire_id" json:"questionnaire_id,omitempty"`
	QuestionID      string          `db:"question_id" json:"question_id"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

func (a Answer) ToModel(id string) any {
	a.ID = id
	return a
}

// GraphSnapshot is the in-memory aggregate the pure graph/path services
// operate on: one graph with its questions, choices and ordered edges,
// loaded in a single pass and never mutated afterwards.
type GraphSnapshot struct {
	Graph             QuestionGraph
	Questions         map[string]Question
	ChoicesByQuestion map[string][]Choice
	// EdgesBySource holds each question's outgoing edges sorted by Ord.
	EdgesBySource map[string][]Edge
}

// FirstQuestionID returns the graph's entry point, or "" when unset.
func (s *GraphSnapshot) FirstQuestionID() string {
	if s.Graph.FirstQuestionID == nil {
		return ""
	}
	return *s.Graph.FirstQuestionID
}

// ChoiceByID looks a choice up across all questions of the snapshot.
func (s *GraphSnapshot) ChoiceByID(id string) (Choice, bool) {
	for _, choices := range s.ChoicesByQuestion {
		for _, c := range choices {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Choice{}, false
}

// PathResult is the full recomputed walk state of one session.
type PathResult struct {
	// PathQuestionIDs is the ordered walk from the first question up to the
	// frontier: the first unanswered question or the terminal question.
	PathQuestionIDs []string `json:"path_question_ids"`
	// NextQuestionID is the first unanswered question on the path, nil when
	// the path has visibly terminated.
	NextQuestionID        *string  `json:"next_question_id,omitempty"`
	Terminated            bool     `json:"terminated"`
	AnsweredQuestionIDs   []string `json:"answered_question_ids"`
	UnansweredQuestionIDs []string `json:"unanswered_question_ids"`
	// ValidationErrors maps question id to the failure message for recorded
	// answers that no longer pass the current configuration.
	ValidationErrors map[string]string `json:"validation_errors,omitempty"`
	CanFreeze        bool              `json:"can_freeze"`
	// Progress is the share of required reachable questions already answered,
	// as a percentage.
	Progress int `json:"progress"`
}
