package pipeline

import (
	"context"
	"errors"

	"email-automation/internal/gmail"
	"email-automation/internal/rules"
)

// Error kinds recorded in a run summary. These are stable strings consumed by
// the API and CLI, not Go error types.
const (
	ErrorKindInvalidParameter  = "invalid_parameter"
	ErrorKindNotFound          = "not_found"
	ErrorKindProviderTransient = "provider_transient"
	ErrorKindProviderFatal     = "provider_fatal"
	ErrorKindStoreIO           = "store_io"
	ErrorKindStoreParse        = "store_parse"
	ErrorKindCancelled         = "cancelled"
)

// RunError is one recorded failure from a run. A run keeps going past most
// errors; the summary collects them instead.
type RunError struct {
	RuleID  string `json:"rule_id,omitempty"`
	EmailID string `json:"email_id,omitempty"`
	Kind    string `json:"error_type"`
	Details string `json:"details"`
}

// ActionResult reports what one aggregated action did (or, in a dry run,
// would do). EmailIDs is populated only when detailed ids were requested.
type ActionResult struct {
	Count    int      `json:"count"`
	EmailIDs []string `json:"email_ids,omitempty"`
}

// RunSummary is the result of one pipeline run.
type RunSummary struct {
	TotalEmailsScanned    int                     `json:"total_emails_scanned"`
	EmailsMatchingAnyRule int                     `json:"emails_matching_any_rule"`
	RulesApplied          map[string]int          `json:"rules_applied_counts"`
	Actions               map[string]ActionResult `json:"actions_planned_or_taken"`
	Errors                []RunError              `json:"errors"`
	DryRun                bool                    `json:"dry_run"`
	Message               string                  `json:"message,omitempty"`
}

func newRunSummary(dryRun bool) *RunSummary {
	return &RunSummary{
		RulesApplied: make(map[string]int),
		Actions:      make(map[string]ActionResult),
		Errors:       []RunError{},
		DryRun:       dryRun,
	}
}

func (s *RunSummary) addError(ruleID, emailID string, err error) {
	s.Errors = append(s.Errors, RunError{
		RuleID:  ruleID,
		EmailID: emailID,
		Kind:    classifyErrorKind(err),
		Details: err.Error(),
	})
}

// classifyErrorKind maps an error onto the summary taxonomy. Exhausted
// retries count as fatal at the call site even though the underlying cause
// was transient.
func classifyErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	case gmail.IsInvalidParameter(err):
		return ErrorKindInvalidParameter
	case gmail.IsNotFound(err):
		return ErrorKindNotFound
	case rules.IsStoreParse(err):
		return ErrorKindStoreParse
	case rules.IsStoreIO(err):
		return ErrorKindStoreIO
	case gmail.IsRetryable(err):
		return ErrorKindProviderTransient
	default:
		return ErrorKindProviderFatal
	}
}
