package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Conjunction controls how a rule's conditions combine.
type Conjunction string

const (
	ConjunctionAnd Conjunction = "AND"
	ConjunctionOr  Conjunction = "OR"
)

// Condition fields.
const (
	FieldFrom               = "from"
	FieldTo                 = "to"
	FieldSubject            = "subject"
	FieldLabel              = "label"
	FieldBodySnippet        = "body_snippet"
	FieldBody               = "body"
	FieldDateAge            = "date_age"
	FieldHasAttachment      = "has_attachment"
	FieldAttachmentFilename = "attachment_filename"
	FieldMessageSize        = "message_size"
)

// Condition operators.
const (
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpOlderThan   = "older_than"
	OpNewerThan   = "newer_than"
	OpIs          = "is"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Action types.
const (
	ActionTrash           = "trash"
	ActionMarkRead        = "mark_read"
	ActionMarkUnread      = "mark_unread"
	ActionAddLabel        = "add_label"
	ActionRemoveLabel     = "remove_label"
	ActionDeletePermanent = "delete_permanent"
)

var knownFields = map[string]bool{
	FieldFrom:               true,
	FieldTo:                 true,
	FieldSubject:            true,
	FieldLabel:              true,
	FieldBodySnippet:        true,
	FieldBody:               true,
	FieldDateAge:            true,
	FieldHasAttachment:      true,
	FieldAttachmentFilename: true,
	FieldMessageSize:        true,
}

var knownOperators = map[string]bool{
	OpContains:    true,
	OpNotContains: true,
	OpEquals:      true,
	OpNotEquals:   true,
	OpStartsWith:  true,
	OpEndsWith:    true,
	OpOlderThan:   true,
	OpNewerThan:   true,
	OpIs:          true,
	OpGreaterThan: true,
	OpLessThan:    true,
}

var knownActionTypes = map[string]bool{
	ActionTrash:           true,
	ActionMarkRead:        true,
	ActionMarkUnread:      true,
	ActionAddLabel:        true,
	ActionRemoveLabel:     true,
	ActionDeletePermanent: true,
}

// Condition is a single field test within a rule. Value semantics are
// field-specific: a label name, a size with optional K/M suffix, an age like
// "30d", "true"/"false" for has_attachment, or an arbitrary substring.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Action is something done to every email a rule matches. LabelName is
// required for add_label and remove_label; an action missing it is skipped
// with a warning at execution time rather than rejected at save time.
type Action struct {
	Type      string `json:"type"`
	LabelName string `json:"label_name,omitempty"`
}

// Key returns the aggregation key for this action: the type alone, or
// "type:label" for label actions.
func (a Action) Key() string {
	if a.Type == ActionAddLabel || a.Type == ActionRemoveLabel {
		return a.Type + ":" + a.LabelName
	}
	return a.Type
}

// Rule is a persistent automation rule. Names are unique case-insensitively
// across the store.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Enabled     bool        `json:"enabled"`
	Conjunction Conjunction `json:"conjunction"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`
}

// NewRule builds a validated rule with a fresh id. The conjunction defaults
// to AND when empty.
func NewRule(name string, conjunction Conjunction, conditions []Condition, actions []Action) (*Rule, error) {
	rule := &Rule{
		ID:          uuid.New().String(),
		Name:        name,
		Enabled:     true,
		Conjunction: conjunction,
		Conditions:  conditions,
		Actions:     actions,
	}
	if rule.Conjunction == "" {
		rule.Conjunction = ConjunctionAnd
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// RuleFromMap normalizes a loosely typed rule description, as received from
// an RPC boundary or a decoded config file, into a Rule. Missing enabled
// defaults to true; a missing id is generated.
func RuleFromMap(m map[string]any) (*Rule, error) {
	rule := &Rule{Enabled: true, Conjunction: ConjunctionAnd}

	if v, ok := m["id"].(string); ok {
		rule.ID = v
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if v, ok := m["name"].(string); ok {
		rule.Name = v
	}
	if v, ok := m["enabled"].(bool); ok {
		rule.Enabled = v
	}
	if v, ok := m["conjunction"].(string); ok && v != "" {
		rule.Conjunction = Conjunction(strings.ToUpper(v))
	}

	if raw, ok := m["conditions"].([]any); ok {
		for i, item := range raw {
			cm, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("condition %d: expected an object, got %T", i, item)
			}
			cond := Condition{}
			if v, ok := cm["field"].(string); ok {
				cond.Field = v
			}
			if v, ok := cm["operator"].(string); ok {
				cond.Operator = v
			}
			switch v := cm["value"].(type) {
			case string:
				cond.Value = v
			case bool:
				cond.Value = strconv.FormatBool(v)
			case float64:
				cond.Value = strconv.FormatFloat(v, 'f', -1, 64)
			}
			rule.Conditions = append(rule.Conditions, cond)
		}
	}

	if raw, ok := m["actions"].([]any); ok {
		for i, item := range raw {
			am, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("action %d: expected an object, got %T", i, item)
			}
			action := Action{}
			if v, ok := am["type"].(string); ok {
				action.Type = v
			}
			if v, ok := am["label_name"].(string); ok {
				action.LabelName = v
			} else if v, ok := am["label"].(string); ok {
				action.LabelName = v
			}
			rule.Actions = append(rule.Actions, action)
		}
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// Validate checks structural validity: known fields, operators, action types
// and a sane conjunction. It deliberately does not require action parameters
// like label_name; those are checked when the rule runs so that a rule with a
// half-filled action can still be saved and fixed later.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Conjunction != ConjunctionAnd && r.Conjunction != ConjunctionOr {
		return fmt.Errorf("rule %q: conjunction must be AND or OR, got %q", r.Name, r.Conjunction)
	}
	for i, c := range r.Conditions {
		if !knownFields[c.Field] {
			return fmt.Errorf("rule %q: condition %d: unknown field %q", r.Name, i, c.Field)
		}
		if !knownOperators[c.Operator] {
			return fmt.Errorf("rule %q: condition %d: unknown operator %q", r.Name, i, c.Operator)
		}
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %q: at least one action is required", r.Name)
	}
	for i, a := range r.Actions {
		if !knownActionTypes[a.Type] {
			return fmt.Errorf("rule %q: action %d: unknown type %q", r.Name, i, a.Type)
		}
	}
	return nil
}

// normalize canonicalizes fields that accept case-insensitive input, so that
// "and" in a hand-edited rule file or an API payload means ConjunctionAnd.
func (r *Rule) normalize() {
	r.Conjunction = Conjunction(strings.ToUpper(string(r.Conjunction)))
	if r.Conjunction == "" {
		r.Conjunction = ConjunctionAnd
	}
}

// Clone returns a deep copy so store internals cannot be mutated through
// returned rules.
func (r *Rule) Clone() *Rule {
	clone := *r
	clone.Conditions = append([]Condition(nil), r.Conditions...)
	clone.Actions = append([]Action(nil), r.Actions...)
	return &clone
}

// HasPermanentDelete reports whether any action permanently deletes mail.
func (r *Rule) HasPermanentDelete() bool {
	for _, a := range r.Actions {
		if a.Type == ActionDeletePermanent {
			return true
		}
	}
	return false
}
