package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"email-automation/internal/cache"
	"email-automation/internal/gmail"
	"email-automation/internal/progress"
	"email-automation/internal/rules"
)

// Defaults applied when the config leaves a knob unset.
const (
	DefaultPageSize         = 50
	DefaultFlushChunkSize   = 500
	DefaultFetchConcurrency = 4

	// maxFlushChunkSize stays under the provider's batch ceiling.
	maxFlushChunkSize = 1000
)

// RuleSource is the slice of the rule store the executor reads.
type RuleSource interface {
	List() ([]*rules.Rule, error)
}

// ProgressFn receives coarse progress updates while a run executes. It is
// called inline and must not block.
type ProgressFn func(percent float64, message string)

// Config holds executor-level defaults, usually from configuration.
type Config struct {
	// PageSize is how many candidate stubs one list call returns. Small
	// pages keep progress updates flowing.
	PageSize int64

	// ScanLimit caps how many candidates a whole run may list across all
	// rules. Zero means unbounded.
	ScanLimit int

	// FlushChunkSize is how many ids one batch write carries.
	FlushChunkSize int

	// FetchConcurrency bounds parallel detail fetches within a page. One
	// degenerates to strictly sequential fetching.
	FetchConcurrency int

	// DryRun forces every run to plan without writing.
	DryRun bool

	// IncludeDetailedIDs records per-action email ids in summaries.
	IncludeDetailedIDs bool

	// UserQuery is the default narrowing query applied when a run does not
	// carry its own.
	UserQuery string

	// AllowPermanentDelete lets delete_permanent actions through to the
	// provider. When false such actions are skipped with a warning.
	AllowPermanentDelete bool

	// DetailsTTL bounds the run-scoped details cache. Zero picks the cache
	// package default.
	DetailsTTL time.Duration

	// DisableDetailsCache turns off detail reuse across rules within a run.
	DisableDetailsCache bool
}

func (c Config) normalized() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.FlushChunkSize <= 0 {
		c.FlushChunkSize = DefaultFlushChunkSize
	}
	if c.FlushChunkSize > maxFlushChunkSize {
		c.FlushChunkSize = maxFlushChunkSize
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.ScanLimit < 0 {
		c.ScanLimit = 0
	}
	return c
}

// RunOptions are per-run request values layered over the executor config.
type RunOptions struct {
	// RuleIDs restricts the run to the named rules, matched by id or
	// case-insensitive name. Empty means every enabled rule.
	RuleIDs []string

	// UserQuery narrows every rule's candidate search. It is combined with
	// each compiled rule query.
	UserQuery string

	// ScanLimit overrides the configured scan budget when positive.
	ScanLimit int

	// DryRun plans actions without writing. A true value here or in the
	// config wins.
	DryRun bool

	// IncludeDetailedIDs adds per-action email ids to the summary.
	IncludeDetailedIDs bool
}

// Executor runs rules against the mailbox: it pages candidates per rule,
// fetches details when the compiled query cannot decide alone, aggregates
// matched ids per action, and flushes the actions in chunks at the end.
type Executor struct {
	provider gmail.Provider
	resolver *gmail.LabelResolver
	store    RuleSource
	matcher  *rules.Matcher
	tracker  *progress.Tracker
	cfg      Config
	logger   *slog.Logger
}

// NewExecutor wires an executor. The tracker may be nil when nothing observes
// progress.
func NewExecutor(provider gmail.Provider, resolver *gmail.LabelResolver, store RuleSource, tracker *progress.Tracker, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		provider: provider,
		resolver: resolver,
		store:    store,
		matcher:  rules.NewMatcher(logger),
		tracker:  tracker,
		cfg:      cfg.normalized(),
		logger:   logger,
	}
}

// runState accumulates everything one run produces. It is confined to the
// run's goroutine except for error recording during concurrent detail
// fetches, which addErrorLocked covers.
type runState struct {
	mu           sync.Mutex
	summary      *RunSummary
	pending      map[string]*pendingAction
	pendingOrder []string
	matched      map[string]struct{}
	details      *cache.DetailsCache
	scanned      int
	scanLimit    int
	labelsPrimed bool
	cancelled    bool
}

type pendingAction struct {
	action rules.Action
	ids    map[string]struct{}
}

func (st *runState) addPending(action rules.Action, emailID string) {
	key := action.Key()
	pa, ok := st.pending[key]
	if !ok {
		pa = &pendingAction{action: action, ids: make(map[string]struct{})}
		st.pending[key] = pa
		st.pendingOrder = append(st.pendingOrder, key)
	}
	pa.ids[emailID] = struct{}{}
}

func (st *runState) addErrorLocked(ruleID, emailID string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.summary.addError(ruleID, emailID, err)
}

// noteCancelled records the cancellation once, no matter how many checkpoints
// observe it.
func (st *runState) noteCancelled(ruleID string, err error) {
	if st.cancelled {
		return
	}
	st.cancelled = true
	st.summary.addError(ruleID, "", err)
}

// budgetExhausted reports whether the run-wide scan budget is spent.
func (st *runState) budgetExhausted() bool {
	return st.scanLimit > 0 && st.scanned >= st.scanLimit
}

// Run executes every selected rule and returns the run summary. On
// cancellation the partial summary is returned together with the context's
// error so callers can both mark the task cancelled and keep the partial
// results.
func (e *Executor) Run(ctx context.Context, opts RunOptions, onProgress ProgressFn) (summary *RunSummary, runErr error) {
	st := &runState{
		summary:   newRunSummary(opts.DryRun || e.cfg.DryRun),
		pending:   make(map[string]*pendingAction),
		matched:   make(map[string]struct{}),
		details:   cache.NewDetailsCache(e.cfg.DisableDetailsCache, e.cfg.DetailsTTL),
		scanLimit: e.cfg.ScanLimit,
	}
	defer st.details.Close()
	if opts.ScanLimit > 0 {
		st.scanLimit = opts.ScanLimit
	}
	if opts.UserQuery == "" {
		opts.UserQuery = e.cfg.UserQuery
	}
	detailed := opts.IncludeDetailedIDs || e.cfg.IncludeDetailedIDs

	op := e.startOperation(opts, onProgress)
	defer func() { e.finishOperation(op, st, runErr) }()

	selected, err := e.selectRules(opts.RuleIDs)
	if err != nil {
		return nil, err
	}
	op.AdvanceStep(fmt.Sprintf("loaded %d rules", len(selected)))

	if len(selected) == 0 {
		st.summary.Message = "no enabled rules matched the request"
		e.logger.Info("run finished without rules")
		return st.summary, nil
	}

	for i, rule := range selected {
		if err := ctx.Err(); err != nil {
			st.noteCancelled(rule.ID, err)
			break
		}
		op.UpdateStep(float64(i)/float64(len(selected))*100, fmt.Sprintf("applying rule %q", rule.Name))
		e.runRule(ctx, st, rule, opts, op)
		if st.budgetExhausted() {
			e.logger.Info("scan budget exhausted", "limit", st.scanLimit)
			break
		}
	}
	op.AdvanceStep("scan finished")

	e.flush(ctx, st, detailed, op)

	st.summary.TotalEmailsScanned = st.scanned
	st.summary.EmailsMatchingAnyRule = len(st.matched)

	e.logger.Info("run finished",
		"scanned", st.summary.TotalEmailsScanned,
		"matched", st.summary.EmailsMatchingAnyRule,
		"actions", len(st.summary.Actions),
		"errors", len(st.summary.Errors),
		"dry_run", st.summary.DryRun)

	if err := ctx.Err(); err != nil {
		st.noteCancelled("", err)
		return st.summary, err
	}
	return st.summary, nil
}

// selectRules loads the store and filters to enabled rules, restricted to the
// requested ids or names when given.
func (e *Executor) selectRules(ruleIDs []string) ([]*rules.Rule, error) {
	all, err := e.store.List()
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	var selected []*rules.Rule
	for _, rule := range all {
		if !rule.Enabled {
			continue
		}
		if len(ruleIDs) > 0 && !matchesAny(rule, ruleIDs) {
			continue
		}
		selected = append(selected, rule)
	}
	return selected, nil
}

func matchesAny(rule *rules.Rule, idsOrNames []string) bool {
	for _, want := range idsOrNames {
		if rule.ID == want || strings.EqualFold(rule.Name, want) {
			return true
		}
	}
	return false
}

// runRule pages through one rule's candidates and aggregates its matches.
// Failures are recorded in the summary; the method never aborts the whole
// run.
func (e *Executor) runRule(ctx context.Context, st *runState, rule *rules.Rule, opts RunOptions, op *operationHandle) {
	if len(rule.Conditions) == 0 {
		e.logger.Warn("rule has no conditions and matches nothing, skipping", "rule", rule.Name)
		return
	}

	compiled := rules.Compile(rule)
	query := combineQueries(opts.UserQuery, compiled.Query)
	format := gmail.FormatMetadata
	if compiled.NeedsBody {
		format = gmail.FormatFull
	}

	actions := e.usableActions(rule)
	if compiled.NeedsDetails {
		e.primeLabelCache(ctx, st, rule)
	}

	e.logger.Debug("running rule",
		"rule", rule.Name,
		"query", query,
		"needs_details", compiled.NeedsDetails,
		"needs_body", compiled.NeedsBody)

	processed := make(map[string]struct{})
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			st.noteCancelled(rule.ID, err)
			return
		}
		if st.budgetExhausted() {
			return
		}

		pageSize := e.cfg.PageSize
		if st.scanLimit > 0 {
			if remaining := int64(st.scanLimit - st.scanned); remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := e.provider.ListMessages(ctx, query, pageSize, pageToken)
		if err != nil {
			// A fatal list error skips the remainder of this rule.
			st.summary.addError(rule.ID, "", err)
			e.logger.Error("listing candidates failed, skipping rule", "rule", rule.Name, "error", err)
			return
		}
		if len(page.Messages) == 0 {
			return
		}
		st.scanned += len(page.Messages)
		op.AddItems(len(page.Messages))

		var emails []*rules.MatchableEmail
		if compiled.NeedsDetails {
			emails = e.hydratePage(ctx, st, rule, page.Messages, format)
			if err := ctx.Err(); err != nil {
				st.noteCancelled(rule.ID, err)
				return
			}
		}

		for i, ref := range page.Messages {
			if err := ctx.Err(); err != nil {
				st.noteCancelled(rule.ID, err)
				return
			}
			if _, dup := processed[ref.ID]; dup {
				continue
			}
			processed[ref.ID] = struct{}{}

			matched := true
			if compiled.NeedsDetails {
				email := emails[i]
				if email == nil {
					// Fetch failed; the error is already recorded.
					continue
				}
				matched = e.matcher.Matches(rule, email)
			}
			if !matched {
				continue
			}

			st.matched[ref.ID] = struct{}{}
			st.summary.RulesApplied[rule.ID]++
			for _, action := range actions {
				st.addPending(action, ref.ID)
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return
		}
	}
}

// hydratePage fetches details for one page of candidates, bounded by the
// configured fetch concurrency. The result is index-aligned with refs; a nil
// entry means the fetch failed and was recorded.
func (e *Executor) hydratePage(ctx context.Context, st *runState, rule *rules.Rule, refs []gmail.MessageRef, format gmail.Format) []*rules.MatchableEmail {
	emails := make([]*rules.MatchableEmail, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if email := st.details.Get(ref.ID, string(format)); email != nil {
				emails[i] = email
				return nil
			}
			msg, err := e.provider.GetMessage(gctx, ref.ID, format)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				st.addErrorLocked(rule.ID, ref.ID, err)
				return nil
			}
			emails[i] = deriveMatchable(msg, e.resolver)
			st.details.Set(ref.ID, string(format), emails[i])
			return nil
		})
	}
	_ = g.Wait()
	return emails
}

// primeLabelCache loads the label map once per run before the first
// client-side evaluation of a label condition, so fetched messages carry
// label names rather than raw ids.
func (e *Executor) primeLabelCache(ctx context.Context, st *runState, rule *rules.Rule) {
	if st.labelsPrimed || e.resolver == nil {
		return
	}
	for _, cond := range rule.Conditions {
		if cond.Field != rules.FieldLabel {
			continue
		}
		if _, err := e.resolver.All(ctx); err != nil {
			e.logger.Warn("label cache priming failed, label ids pass through unresolved", "error", err)
		}
		st.labelsPrimed = true
		return
	}
}

// usableActions filters a rule's actions down to the executable ones,
// warning about the rest.
func (e *Executor) usableActions(rule *rules.Rule) []rules.Action {
	usable := make([]rules.Action, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		switch action.Type {
		case rules.ActionAddLabel, rules.ActionRemoveLabel:
			if action.LabelName == "" {
				e.logger.Warn("skipping label action without a label name", "rule", rule.Name, "action", action.Type)
				continue
			}
		case rules.ActionDeletePermanent:
			if !e.cfg.AllowPermanentDelete {
				e.logger.Warn("skipping delete_permanent action, permanent deletes are disabled", "rule", rule.Name)
				continue
			}
		}
		usable = append(usable, action)
	}
	return usable
}

// flush pushes every aggregated action to the provider in chunks, or records
// the plan when dry-running. Chunk failures are isolated: they are recorded
// and the rest of the flush continues.
func (e *Executor) flush(ctx context.Context, st *runState, detailed bool, op *operationHandle) {
	keys := append([]string(nil), st.pendingOrder...)
	sort.Strings(keys)

	for i, key := range keys {
		pa := st.pending[key]
		ids := sortedIDs(pa.ids)
		op.UpdateStep(float64(i)/float64(len(keys))*100, fmt.Sprintf("flushing %s (%d emails)", key, len(ids)))

		if st.summary.DryRun {
			result := ActionResult{Count: len(ids)}
			if detailed {
				result.EmailIDs = ids
			}
			st.summary.Actions[key] = result
			continue
		}

		if err := ctx.Err(); err != nil {
			st.noteCancelled("", err)
			return
		}
		st.summary.Actions[key] = e.flushAction(ctx, st, pa, ids, detailed)
	}
}

// flushAction executes one aggregated action over its sorted id list in
// chunks. Only ids from successful chunks are counted.
func (e *Executor) flushAction(ctx context.Context, st *runState, pa *pendingAction, ids []string, detailed bool) ActionResult {
	result := ActionResult{}

	apply, err := e.applyFunc(ctx, pa.action)
	if err != nil {
		st.summary.addError("", "", fmt.Errorf("action %s: %w", pa.action.Key(), err))
		return result
	}

	for start := 0; start < len(ids); start += e.cfg.FlushChunkSize {
		if err := ctx.Err(); err != nil {
			st.noteCancelled("", err)
			return result
		}
		end := start + e.cfg.FlushChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		n, err := apply(chunk)
		if err != nil {
			st.summary.addError("", "", fmt.Errorf("action %s: %w", pa.action.Key(), err))
			continue
		}
		result.Count += n
		if detailed {
			result.EmailIDs = append(result.EmailIDs, chunk...)
		}
	}
	return result
}

// applyFunc resolves an action to the provider call executing it. Label
// resolution happens here, once per action rather than once per chunk.
func (e *Executor) applyFunc(ctx context.Context, action rules.Action) (func(ids []string) (int, error), error) {
	switch action.Type {
	case rules.ActionTrash:
		return func(ids []string) (int, error) { return e.provider.BatchTrash(ctx, ids) }, nil
	case rules.ActionMarkRead:
		return func(ids []string) (int, error) { return e.provider.BatchMarkRead(ctx, ids, true) }, nil
	case rules.ActionMarkUnread:
		return func(ids []string) (int, error) { return e.provider.BatchMarkRead(ctx, ids, false) }, nil
	case rules.ActionDeletePermanent:
		return func(ids []string) (int, error) { return e.provider.BatchDelete(ctx, ids) }, nil
	case rules.ActionAddLabel, rules.ActionRemoveLabel:
		labelID, err := e.resolveActionLabel(ctx, action.LabelName)
		if err != nil {
			return nil, err
		}
		if action.Type == rules.ActionAddLabel {
			return func(ids []string) (int, error) {
				return e.provider.BatchModifyLabels(ctx, ids, []string{labelID}, nil)
			}, nil
		}
		return func(ids []string) (int, error) {
			return e.provider.BatchModifyLabels(ctx, ids, nil, []string{labelID})
		}, nil
	default:
		return nil, &gmail.InvalidParameterError{Param: "action", Reason: fmt.Sprintf("unknown type %q", action.Type)}
	}
}

func (e *Executor) resolveActionLabel(ctx context.Context, name string) (string, error) {
	if e.resolver == nil {
		return "", &gmail.InvalidParameterError{Param: "label", Reason: "no label resolver configured"}
	}
	labelID, err := e.resolver.ResolveName(ctx, name)
	if err != nil {
		return "", err
	}
	if labelID == "" {
		return "", &gmail.NotFoundError{Resource: "label", ID: name}
	}
	return labelID, nil
}

// startOperation registers the run with the progress tracker. It returns nil
// when no tracker is configured; *progress.Operation methods below tolerate
// that through the nil-safe wrappers in this package.
func (e *Executor) startOperation(opts RunOptions, onProgress ProgressFn) *operationHandle {
	if e.tracker == nil {
		return nil
	}
	name := "rule run"
	if len(opts.RuleIDs) > 0 {
		name = fmt.Sprintf("rule run (%s)", strings.Join(opts.RuleIDs, ", "))
	}
	op := e.tracker.StartOperation(name, "rule_run", 0, []progress.Step{
		{Name: "load rules", Weight: 1},
		{Name: "scan", Weight: 7},
		{Name: "flush", Weight: 2},
	})
	if onProgress != nil {
		op.OnUpdate(func(s progress.Snapshot) {
			onProgress(s.OverallPercent, s.Message)
		})
	}
	return &operationHandle{op: op, tracker: e.tracker}
}

func (e *Executor) finishOperation(op *operationHandle, st *runState, runErr error) {
	if op == nil {
		return
	}
	switch {
	case st.cancelled:
		op.op.Cancel("run cancelled")
	case runErr != nil:
		op.op.Fail(runErr.Error())
	default:
		op.op.Complete("run finished")
	}
	op.tracker.Remove(op.op.ID())
}

// operationHandle makes progress reporting optional: a nil handle swallows
// updates so the executor body stays free of tracker checks.
type operationHandle struct {
	op      *progress.Operation
	tracker *progress.Tracker
}

func (h *operationHandle) UpdateStep(percent float64, message string) {
	if h != nil {
		h.op.UpdateStep(percent, message)
	}
}

func (h *operationHandle) AdvanceStep(message string) {
	if h != nil {
		h.op.AdvanceStep(message)
	}
}

func (h *operationHandle) AddItems(n int) {
	if h != nil {
		h.op.AddItems(n)
	}
}

func combineQueries(userQuery, ruleQuery string) string {
	userQuery = strings.TrimSpace(userQuery)
	ruleQuery = strings.TrimSpace(ruleQuery)
	switch {
	case userQuery == "":
		return ruleQuery
	case ruleQuery == "":
		return userQuery
	default:
		return "(" + userQuery + ") AND (" + ruleQuery + ")"
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
