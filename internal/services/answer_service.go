package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/expr-lang/expr"

	"github.com/paulexconde/followup/internal/models"
	"github.com/paulexconde/followup/internal/pkg/cache"
	"github.com/paulexconde/followup/pkg/fault"
)

// Validation rule names surfaced inside ValidationError.
const (
	RulePayload      = "payload"
	RuleRequired     = "required"
	RuleType         = "type"
	RuleChoices      = "choices"
	RuleMultiplicity = "multiplicity"
	RuleCustom       = "rule"
)

// AnswerValidator checks a submitted payload against a question's field-type
// contract, its required/choice/multiplicity rules and its optional custom
// rule expression. Pure: same inputs, same verdict, no I/O.
type AnswerValidator interface {
	Validate(question models.Question, choices []models.Choice, payload json.RawMessage) (any, error)
}

type answerValidatorImpl struct {
	programs *cache.ProgramCache
}

// Instantiate the AnswerValidator. The program cache is shared so rule
// expressions compile once per question until invalidated.
func NewAnswerValidator(programs *cache.ProgramCache) AnswerValidator {
	return &answerValidatorImpl{programs: programs}
}

func (v *answerValidatorImpl) Validate(question models.Question, choices []models.Choice, payload json.RawMessage) (any, error) {
	value, err := decodePayload(payload)
	if err != nil {
		return nil, fault.NewValidationError(question.ID, RulePayload, "payload is not valid JSON")
	}

	if isEmptyValue(value) {
		if question.Required {
			return nil, fault.NewValidationError(question.ID, RuleRequired, "a value is required")
		}
		return nil, nil
	}

	if question.MultipleAnswers {
		items, ok := value.([]any)
		if !ok {
			return nil, fault.NewValidationError(question.ID, RuleMultiplicity, "expected a list of values")
		}
		if err := checkItemBounds(question, len(items)); err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := v.validateSingle(question, choices, item); err != nil {
				return nil, err
			}
		}
	} else {
		if err := v.validateSingle(question, choices, value); err != nil {
			return nil, err
		}
	}

	if err := v.checkCustomRule(question, value); err != nil {
		return nil, err
	}

	return value, nil
}

// validateSingle applies the field-type contract and choice enforcement to
// one value (the payload itself, or one element of a multi-answer list).
func (v *answerValidatorImpl) validateSingle(question models.Question, choices []models.Choice, value any) error {
	if err := checkFieldContract(question, value); err != nil {
		return err
	}
	if question.EnforceChoices {
		return checkChoiceMembership(question, choices, value)
	}
	return nil
}

func (v *answerValidatorImpl) checkCustomRule(question models.Question, value any) error {
	cfg, err := question.DecodeConfig()
	if err != nil {
		return fault.NewValidationError(question.ID, RuleCustom, "question configuration is not decodable")
	}
	if cfg.Rule == "" {
		return nil
	}

	ok, err := evaluateExpression(v.programs, "rule:"+question.ID, cfg.Rule, map[string]any{"value": value})
	if err != nil {
		return fault.NewValidationError(question.ID, RuleCustom, err.Error())
	}
	if !ok {
		msg := cfg.RuleMessage
		if msg == "" {
			msg = "value rejected by rule"
		}
		return fault.NewValidationError(question.ID, RuleCustom, msg)
	}
	return nil
}

func checkFieldContract(question models.Question, value any) error {
	switch question.Type {
	case models.FieldTypeText:
		if _, ok := value.(string); !ok {
			return typeError(question, "expected text")
		}
	case models.FieldTypeInteger:
		n, ok := value.(float64)
		if !ok || math.Trunc(n) != n {
			return typeError(question, "expected an integer")
		}
	case models.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return typeError(question, "expected a date string")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return typeError(question, "expected a date formatted 2006-01-02")
		}
	case models.FieldTypeTime:
		s, ok := value.(string)
		if !ok {
			return typeError(question, "expected a time string")
		}
		if _, err := time.Parse("15:04", s); err != nil {
			if _, err := time.Parse("15:04:05", s); err != nil {
				return typeError(question, "expected a time formatted 15:04 or 15:04:05")
			}
		}
	case models.FieldTypeSingleChoice:
		if !isScalar(value) {
			return typeError(question, "expected a single scalar value")
		}
	case models.FieldTypeMultiSelect:
		items, ok := value.([]any)
		if !ok {
			return typeError(question, "expected a list of selections")
		}
		for _, item := range items {
			if !isScalar(item) {
				return typeError(question, "selections must be scalar values")
			}
		}
	case models.FieldTypeSelectedObject:
		return checkSelectedObject(question, value)
	default:
		return typeError(question, fmt.Sprintf("unsupported field type %q", question.Type))
	}
	return nil
}

// checkSelectedObject validates the nested map sub-schema: a mandatory id,
// an optional label and an optional lat/lng location.
func checkSelectedObject(question models.Question, value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return typeError(question, "expected an object")
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return typeError(question, "selected object needs a non-empty id")
	}
	if label, present := obj["label"]; present {
		if _, ok := label.(string); !ok {
			return typeError(question, "selected object label must be text")
		}
	}
	if location, present := obj["location"]; present {
		loc, ok := location.(map[string]any)
		if !ok {
			return typeError(question, "selected object location must be an object")
		}
		if _, ok := loc["lat"].(float64); !ok {
			return typeError(question, "location needs a numeric lat")
		}
		if _, ok := loc["lng"].(float64); !ok {
			return typeError(question, "location needs a numeric lng")
		}
	}
	return nil
}

func checkChoiceMembership(question models.Question, choices []models.Choice, value any) error {
	for _, choice := range choices {
		choiceValue, err := decodePayload(choice.Payload)
		if err != nil {
			continue
		}
		if reflect.DeepEqual(value, choiceValue) {
			return nil
		}
	}
	return fault.NewValidationError(question.ID, RuleChoices, "value is not one of the allowed choices")
}

func checkItemBounds(question models.Question, count int) error {
	if question.MinItems != nil && count < *question.MinItems {
		return fault.NewValidationError(question.ID, RuleMultiplicity,
			fmt.Sprintf("expected at least %d values, got %d", *question.MinItems, count))
	}
	if question.MaxItems != nil && count > *question.MaxItems {
		return fault.NewValidationError(question.ID, RuleMultiplicity,
			fmt.Sprintf("expected at most %d values, got %d", *question.MaxItems, count))
	}
	return nil
}

func typeError(question models.Question, msg string) error {
	return fault.NewValidationError(question.ID, RuleType, msg)
}

// decodePayload turns raw JSON into the generic value the contracts inspect.
// Empty and literal-null payloads both decode to nil.
func decodePayload(payload json.RawMessage) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, float64, bool:
		return true
	default:
		return false
	}
}

// evaluateExpression runs a cached boolean expression against input.
func evaluateExpression(programs *cache.ProgramCache, key, source string, input map[string]any) (bool, error) {
	program, err := programs.Get(key, source)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, input)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)

	if !ok {
		return false, errors.New("expression did not return a boolean")
	}

	return result, nil
}
