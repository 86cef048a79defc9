package rules

import (
	"regexp"
	"strings"
)

// Value shapes the provider accepts verbatim. Ages look like "30d", "6m",
// "1y"; sizes are bytes or "500K" / "10M".
var (
	agePattern  = regexp.MustCompile(`^\d+[dmy]$`)
	sizePattern = regexp.MustCompile(`^\d+[KM]?$`)
)

// CompiledQuery is the two-phase evaluation plan for one rule: a provider
// search query that narrows candidates server-side, plus flags saying whether
// message details must still be fetched for a client-side check.
type CompiledQuery struct {
	// Query is the provider search string. Empty means "no server-side
	// narrowing" and every candidate must be checked client-side.
	Query string

	// NeedsDetails is false only when the query fully expresses the rule,
	// in which case every id the provider returns is a match.
	NeedsDetails bool

	// NeedsBody means the client-side check reads the message body, so
	// details must be fetched in full format rather than metadata.
	NeedsBody bool
}

// Compile splits a rule into a server query and a residual client-side
// check. Conditions the provider's query language can express become query
// fragments; the rest force NeedsDetails. With an AND conjunction a partial
// query still safely narrows candidates. With OR it would wrongly exclude
// messages matched only by untranslatable branches, so the query is dropped
// and every candidate is checked client-side.
func Compile(rule *Rule) CompiledQuery {
	compiled := CompiledQuery{}

	if len(rule.Conditions) == 0 {
		compiled.NeedsDetails = true
		return compiled
	}

	fragments := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		if cond.Field == FieldBody || cond.Field == FieldBodySnippet {
			compiled.NeedsBody = true
		}
		if fragment, ok := translateCondition(cond); ok {
			fragments = append(fragments, fragment)
		} else {
			compiled.NeedsDetails = true
		}
	}

	if rule.Conjunction == ConjunctionOr {
		if compiled.NeedsDetails {
			return compiled
		}
		compiled.Query = strings.Join(fragments, " OR ")
		return compiled
	}

	compiled.Query = strings.Join(fragments, " ")
	return compiled
}

// translateCondition maps one condition onto a provider query fragment.
// The false return means the condition cannot be pushed down and must be
// evaluated client-side.
func translateCondition(c Condition) (string, bool) {
	value := strings.TrimSpace(c.Value)
	if value == "" && c.Field != FieldHasAttachment {
		return "", false
	}

	switch c.Field {
	case FieldFrom, FieldTo:
		prefix := c.Field + ":"
		switch c.Operator {
		case OpContains:
			return prefix + value, true
		case OpEquals:
			return prefix + "(" + value + ")", true
		case OpNotContains, OpNotEquals:
			return "-" + prefix + value, true
		}

	case FieldSubject:
		switch c.Operator {
		case OpContains:
			return "subject:" + quoteIfSpaces(value), true
		case OpEquals:
			return `subject:("` + value + `")`, true
		case OpNotContains:
			return "-subject:" + quoteIfSpaces(value), true
		case OpNotEquals:
			return `-subject:("` + value + `")`, true
		}

	case FieldLabel:
		switch c.Operator {
		case OpContains:
			return "label:" + value, true
		case OpNotContains:
			return "-label:" + value, true
		}

	case FieldDateAge:
		if !agePattern.MatchString(value) {
			return "", false
		}
		switch c.Operator {
		case OpOlderThan:
			return "older_than:" + value, true
		case OpNewerThan:
			return "newer_than:" + value, true
		}

	case FieldHasAttachment:
		if c.Operator != OpIs {
			return "", false
		}
		switch {
		case strings.EqualFold(value, "true"):
			return "has:attachment", true
		case strings.EqualFold(value, "false"):
			return "-has:attachment", true
		}

	case FieldAttachmentFilename:
		switch c.Operator {
		case OpContains, OpEquals:
			return "filename:" + quoteIfSpaces(value), true
		case OpNotContains, OpNotEquals:
			return "-filename:" + quoteIfSpaces(value), true
		}

	case FieldMessageSize:
		if !sizePattern.MatchString(value) {
			return "", false
		}
		switch c.Operator {
		case OpGreaterThan:
			return "larger:" + value, true
		case OpLessThan:
			return "smaller:" + value, true
		}
	}

	return "", false
}

func quoteIfSpaces(value string) string {
	if strings.ContainsAny(value, " \t") {
		return `"` + value + `"`
	}
	return value
}
