package rules

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// MatchableEmail is the flattened view of one message that the client-side
// check runs against. Which fields are populated depends on the format the
// message was fetched in: metadata fills the headers and labels, full adds
// the body and attachment filenames.
type MatchableEmail struct {
	ID                  string
	From                string
	To                  string
	Subject             string
	BodySnippet         string
	Body                string
	Labels              []string
	HasAttachment       bool
	AttachmentFilenames []string
	SizeBytes           int64
	InternalTimestamp   time.Time
}

// Matcher evaluates rules against fetched messages. Evaluation is pure: the
// same rule and email always produce the same answer (the reference time is
// captured per matcher for age conditions).
type Matcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewMatcher creates a matcher. A nil logger falls back to slog.Default.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger, now: time.Now}
}

// Matches reports whether the email satisfies the rule: AND requires every
// condition, OR requires at least one. A rule with no conditions matches
// nothing.
func (m *Matcher) Matches(rule *Rule, email *MatchableEmail) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	if rule.Conjunction == ConjunctionOr {
		for _, cond := range rule.Conditions {
			if m.matchCondition(cond, email) {
				return true
			}
		}
		return false
	}

	for _, cond := range rule.Conditions {
		if !m.matchCondition(cond, email) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchCondition(cond Condition, email *MatchableEmail) bool {
	switch cond.Field {
	case FieldFrom:
		return m.matchString(cond, email.From)
	case FieldTo:
		return m.matchString(cond, email.To)
	case FieldSubject:
		return m.matchString(cond, email.Subject)
	case FieldBodySnippet:
		return m.matchString(cond, email.BodySnippet)
	case FieldBody:
		return m.matchString(cond, email.Body)
	case FieldLabel:
		return m.matchLabels(cond, email.Labels)
	case FieldHasAttachment:
		return m.matchHasAttachment(cond, email)
	case FieldAttachmentFilename:
		return m.matchFilenames(cond, email.AttachmentFilenames)
	case FieldDateAge:
		return m.matchAge(cond, email)
	case FieldMessageSize:
		return m.matchSize(cond, email)
	default:
		m.warn(cond, "unknown field")
		return false
	}
}

// matchString handles the case-insensitive text operators shared by every
// single-valued string field.
func (m *Matcher) matchString(cond Condition, fieldValue string) bool {
	have := strings.ToLower(fieldValue)
	want := strings.ToLower(cond.Value)

	switch cond.Operator {
	case OpContains:
		return strings.Contains(have, want)
	case OpNotContains:
		return !strings.Contains(have, want)
	case OpEquals:
		return have == want
	case OpNotEquals:
		return have != want
	case OpStartsWith:
		return strings.HasPrefix(have, want)
	case OpEndsWith:
		return strings.HasSuffix(have, want)
	default:
		m.warn(cond, "operator not valid for text fields")
		return false
	}
}

// matchLabels treats the label field as list-valued: contains means any
// label equals the value, not_contains means none does.
func (m *Matcher) matchLabels(cond Condition, labels []string) bool {
	found := false
	for _, label := range labels {
		if strings.EqualFold(label, cond.Value) {
			found = true
			break
		}
	}

	switch cond.Operator {
	case OpContains:
		return found
	case OpNotContains:
		return !found
	default:
		m.warn(cond, "only contains and not_contains apply to labels")
		return false
	}
}

func (m *Matcher) matchHasAttachment(cond Condition, email *MatchableEmail) bool {
	if cond.Operator != OpIs {
		m.warn(cond, "has_attachment only supports the is operator")
		return false
	}
	want, err := strconv.ParseBool(strings.ToLower(cond.Value))
	if err != nil {
		m.warn(cond, "value must be true or false")
		return false
	}
	return email.HasAttachment == want
}

func (m *Matcher) matchFilenames(cond Condition, filenames []string) bool {
	switch cond.Operator {
	case OpContains, OpEquals:
		for _, name := range filenames {
			if m.filenameMatches(cond, name) {
				return true
			}
		}
		return false
	case OpNotContains, OpNotEquals:
		for _, name := range filenames {
			if m.filenameMatches(cond, name) {
				return false
			}
		}
		return true
	default:
		m.warn(cond, "operator not valid for attachment filenames")
		return false
	}
}

func (m *Matcher) filenameMatches(cond Condition, name string) bool {
	have := strings.ToLower(name)
	want := strings.ToLower(cond.Value)
	if cond.Operator == OpEquals || cond.Operator == OpNotEquals {
		return have == want
	}
	return strings.Contains(have, want)
}

// matchAge compares the message timestamp against "now minus the value",
// where the value is digits plus a d/m/y unit.
func (m *Matcher) matchAge(cond Condition, email *MatchableEmail) bool {
	if cond.Operator != OpOlderThan && cond.Operator != OpNewerThan {
		m.warn(cond, "date_age only supports older_than and newer_than")
		return false
	}
	if email.InternalTimestamp.IsZero() {
		m.warn(cond, "message has no timestamp")
		return false
	}

	cutoff, ok := ageCutoff(m.now(), cond.Value)
	if !ok {
		m.warn(cond, "value must be digits plus d, m or y")
		return false
	}

	if cond.Operator == OpOlderThan {
		return email.InternalTimestamp.Before(cutoff)
	}
	return email.InternalTimestamp.After(cutoff)
}

func ageCutoff(now time.Time, value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if !agePattern.MatchString(value) {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return time.Time{}, false
	}

	switch value[len(value)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), true
	case 'm':
		return now.AddDate(0, -n, 0), true
	case 'y':
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

func (m *Matcher) matchSize(cond Condition, email *MatchableEmail) bool {
	if cond.Operator != OpGreaterThan && cond.Operator != OpLessThan {
		m.warn(cond, "message_size only supports greater_than and less_than")
		return false
	}

	limit, ok := parseSize(cond.Value)
	if !ok {
		m.warn(cond, "value must be digits with optional K or M suffix")
		return false
	}

	if cond.Operator == OpGreaterThan {
		return email.SizeBytes > limit
	}
	return email.SizeBytes < limit
}

func parseSize(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if !sizePattern.MatchString(value) {
		return 0, false
	}

	multiplier := int64(1)
	switch value[len(value)-1] {
	case 'K':
		multiplier = 1024
		value = value[:len(value)-1]
	case 'M':
		multiplier = 1024 * 1024
		value = value[:len(value)-1]
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n * multiplier, true
}

func (m *Matcher) warn(cond Condition, reason string) {
	m.logger.Warn("condition skipped",
		"field", cond.Field,
		"operator", cond.Operator,
		"value", cond.Value,
		"reason", reason)
}
