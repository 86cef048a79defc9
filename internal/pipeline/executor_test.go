package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"email-automation/internal/gmail"
	"email-automation/internal/progress"
	"email-automation/internal/rules"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type modifyCall struct {
	ids    []string
	add    []string
	remove []string
}

type markReadCall struct {
	ids  []string
	read bool
}

// fakeProvider scripts list pages per query string and records every write.
// It is safe for the executor's concurrent detail fetches.
type fakeProvider struct {
	mu sync.Mutex

	pages    map[string][][]gmail.MessageRef
	messages map[string]*gmailapi.Message
	labels   []gmail.Label

	listErrs    map[string]error // query -> error
	getErrs     map[string]error
	modifyErrOn map[int]error // 1-based modify call number -> error

	listQueries    []string
	listCalls      int
	afterList      func(call int)
	getCalls       int
	getFormats     []gmail.Format
	modifyCalls    []modifyCall
	trashCalls     [][]string
	markReadCalls  []markReadCall
	deleteCalls    [][]string
	listLabelCalls int
}

var _ gmail.Provider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pages:       make(map[string][][]gmail.MessageRef),
		messages:    make(map[string]*gmailapi.Message),
		listErrs:    make(map[string]error),
		getErrs:     make(map[string]error),
		modifyErrOn: make(map[int]error),
	}
}

func (p *fakeProvider) ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*gmail.MessagePage, error) {
	p.mu.Lock()
	p.listCalls = p.listCalls + 1
	call := p.listCalls
	p.listQueries = append(p.listQueries, query)
	hook := p.afterList

	if err := p.listErrs[query]; err != nil {
		p.mu.Unlock()
		return nil, err
	}

	idx := 0
	if pageToken != "" {
		idx, _ = strconv.Atoi(pageToken)
	}

	page := &gmail.MessagePage{}
	script := p.pages[query]
	if idx < len(script) {
		refs := script[idx]
		if int64(len(refs)) > maxResults {
			refs = refs[:maxResults]
		}
		page.Messages = append(page.Messages, refs...)
		if idx+1 < len(script) {
			page.NextPageToken = strconv.Itoa(idx + 1)
		}
	}
	p.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return page, nil
}

func (p *fakeProvider) GetMessage(ctx context.Context, id string, format gmail.Format) (*gmailapi.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.getCalls++
	p.getFormats = append(p.getFormats, format)
	if err := p.getErrs[id]; err != nil {
		return nil, err
	}
	msg, ok := p.messages[id]
	if !ok {
		return nil, &gmail.NotFoundError{Resource: "message", ID: id}
	}
	return msg, nil
}

func (p *fakeProvider) BatchModifyLabels(ctx context.Context, ids, add, remove []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.modifyCalls = append(p.modifyCalls, modifyCall{
		ids:    append([]string(nil), ids...),
		add:    append([]string(nil), add...),
		remove: append([]string(nil), remove...),
	})
	if err := p.modifyErrOn[len(p.modifyCalls)]; err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (p *fakeProvider) BatchTrash(ctx context.Context, ids []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trashCalls = append(p.trashCalls, append([]string(nil), ids...))
	return len(ids), nil
}

func (p *fakeProvider) BatchMarkRead(ctx context.Context, ids []string, read bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markReadCalls = append(p.markReadCalls, markReadCall{ids: append([]string(nil), ids...), read: read})
	return len(ids), nil
}

func (p *fakeProvider) BatchDelete(ctx context.Context, ids []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls = append(p.deleteCalls, append([]string(nil), ids...))
	return len(ids), nil
}

func (p *fakeProvider) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listLabelCalls++
	return p.labels, nil
}

func (p *fakeProvider) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.modifyCalls) + len(p.trashCalls) + len(p.markReadCalls) + len(p.deleteCalls)
}

type fakeStore struct {
	rules []*rules.Rule
	err   error
}

func (s *fakeStore) List() ([]*rules.Rule, error) {
	return s.rules, s.err
}

func stubMessage(id, from, subject, snippet string, labelIDs ...string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		ThreadId:     "t-" + id,
		Snippet:      snippet,
		LabelIds:     labelIDs,
		SizeEstimate: 2048,
		InternalDate: time.Now().Add(-48 * time.Hour).UnixMilli(),
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: subject},
			},
		},
	}
}

func refsFor(prefix string, start, count int) []gmail.MessageRef {
	refs := make([]gmail.MessageRef, 0, count)
	for i := start; i < start+count; i++ {
		id := fmt.Sprintf("%s%03d", prefix, i)
		refs = append(refs, gmail.MessageRef{ID: id, ThreadID: "t-" + id})
	}
	return refs
}

func newTestExecutor(provider *fakeProvider, store RuleSource, cfg Config) *Executor {
	resolver := gmail.NewLabelResolver(provider)
	return NewExecutor(provider, resolver, store, nil, cfg, slogDiscard())
}

func mustAddLabelRule(t *testing.T) *rules.Rule {
	t.Helper()
	rule, err := rules.NewRule("newsletters", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "newsletter@"}},
		[]rules.Action{{Type: rules.ActionAddLabel, LabelName: "News"}})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return rule
}

// A rule whose every condition compiles to the server query: the executor
// must trust the listing and never fetch details.
func TestRun_ServerOnlyRule(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["from:newsletter@"] = [][]gmail.MessageRef{
		refsFor("m", 0, 50),
		refsFor("m", 50, 50),
		refsFor("m", 100, 20),
	}

	rule := mustAddLabelRule(t)
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})

	summary, err := exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if provider.getCalls != 0 {
		t.Errorf("server-only rule fetched details %d times", provider.getCalls)
	}
	if provider.listCalls != 3 {
		t.Errorf("expected 3 list pages, got %d", provider.listCalls)
	}
	if summary.TotalEmailsScanned != 120 {
		t.Errorf("scanned = %d, want 120", summary.TotalEmailsScanned)
	}
	if summary.EmailsMatchingAnyRule != 120 {
		t.Errorf("matched = %d, want 120", summary.EmailsMatchingAnyRule)
	}
	if summary.RulesApplied[rule.ID] != 120 {
		t.Errorf("rules_applied[%s] = %d, want 120", rule.ID, summary.RulesApplied[rule.ID])
	}
	if got := summary.Actions["add_label:News"].Count; got != 120 {
		t.Errorf("add_label:News count = %d, want 120", got)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", summary.Errors)
	}

	if len(provider.modifyCalls) != 1 {
		t.Fatalf("expected one modify batch, got %d", len(provider.modifyCalls))
	}
	call := provider.modifyCalls[0]
	if len(call.ids) != 120 {
		t.Errorf("batch carried %d ids, want 120", len(call.ids))
	}
	if len(call.add) != 1 || call.add[0] != "Label_5" {
		t.Errorf("batch add = %v, want [Label_5]", call.add)
	}
}

// A body-only rule compiles to an empty query: every message is listed and
// fetched in full format, and only the client-side check decides.
func TestRun_NeedsDetails(t *testing.T) {
	provider := newFakeProvider()
	refs := refsFor("d", 0, 10)
	provider.pages[""] = [][]gmail.MessageRef{refs}
	for i, ref := range refs {
		snippet := "regular update"
		if i%3 == 0 {
			snippet = "your invoice is attached" // d000, d003, d006, d009
		}
		provider.messages[ref.ID] = stubMessage(ref.ID, "someone@example.com", "hello", snippet)
	}
	// Make it exactly 3 matches.
	provider.messages["d009"] = stubMessage("d009", "someone@example.com", "hello", "regular update")

	rule, err := rules.NewRule("invoices", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "invoice"}},
		[]rules.Action{{Type: rules.ActionMarkRead}})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if provider.getCalls != 10 {
		t.Errorf("expected every candidate fetched, got %d", provider.getCalls)
	}
	for _, format := range provider.getFormats {
		if format != gmail.FormatFull {
			t.Errorf("body rule must fetch full format, got %s", format)
		}
	}
	if summary.EmailsMatchingAnyRule != 3 {
		t.Errorf("matched = %d, want 3", summary.EmailsMatchingAnyRule)
	}
	if len(provider.markReadCalls) != 1 || len(provider.markReadCalls[0].ids) != 3 {
		t.Fatalf("mark_read calls: %+v", provider.markReadCalls)
	}
	if !provider.markReadCalls[0].read {
		t.Error("mark_read should mark messages read")
	}
}

// A mixed AND rule narrows server-side first and fetches details only for the
// server-matched candidates.
func TestRun_MixedAnd(t *testing.T) {
	provider := newFakeProvider()
	refs := refsFor("a", 0, 5)
	provider.pages["from:@acme.com"] = [][]gmail.MessageRef{refs}
	for i, ref := range refs {
		snippet := "weekly digest"
		if i < 2 {
			snippet = "urgent: action required"
		}
		provider.messages[ref.ID] = stubMessage(ref.ID, "ops@acme.com", "status", snippet)
	}

	rule, err := rules.NewRule("urgent acme", rules.ConjunctionAnd,
		[]rules.Condition{
			{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "@acme.com"},
			{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "urgent"},
		},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if provider.getCalls != 5 {
		t.Errorf("details fetched %d times, want 5 (server candidates only)", provider.getCalls)
	}
	if summary.EmailsMatchingAnyRule != 2 {
		t.Errorf("matched = %d, want 2", summary.EmailsMatchingAnyRule)
	}
	if len(provider.trashCalls) != 1 || len(provider.trashCalls[0]) != 2 {
		t.Fatalf("trash calls: %+v", provider.trashCalls)
	}
}

// Dry run: identical planning, zero provider writes.
func TestRun_DryRun(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["from:newsletter@"] = [][]gmail.MessageRef{
		refsFor("m", 0, 50),
		refsFor("m", 50, 50),
		refsFor("m", 100, 20),
	}

	rule := mustAddLabelRule(t)
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})

	summary, err := exec.Run(context.Background(), RunOptions{DryRun: true, IncludeDetailedIDs: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if provider.writeCount() != 0 {
		t.Errorf("dry run performed %d writes", provider.writeCount())
	}
	if !summary.DryRun {
		t.Error("summary should be flagged dry_run")
	}
	planned := summary.Actions["add_label:News"]
	if planned.Count != 120 {
		t.Errorf("planned count = %d, want 120", planned.Count)
	}
	if len(planned.EmailIDs) != 120 {
		t.Errorf("detailed ids = %d, want 120", len(planned.EmailIDs))
	}
	if planned.EmailIDs[0] != "m000" {
		t.Errorf("ids should be sorted, first = %s", planned.EmailIDs[0])
	}
}

func TestRun_UserQueryCombination(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["(is:unread) AND (from:newsletter@)"] = [][]gmail.MessageRef{refsFor("m", 0, 2)}

	rule := mustAddLabelRule(t)
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})

	summary, err := exec.Run(context.Background(), RunOptions{UserQuery: "is:unread"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(provider.listQueries) == 0 || provider.listQueries[0] != "(is:unread) AND (from:newsletter@)" {
		t.Errorf("list queries: %v", provider.listQueries)
	}
	if summary.EmailsMatchingAnyRule != 2 {
		t.Errorf("matched = %d, want 2", summary.EmailsMatchingAnyRule)
	}
}

func TestRun_ConfigUserQueryDefault(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["(label:inbox) AND (from:newsletter@)"] = [][]gmail.MessageRef{refsFor("m", 0, 2)}
	provider.pages["(is:unread) AND (from:newsletter@)"] = [][]gmail.MessageRef{refsFor("n", 0, 1)}

	rule := mustAddLabelRule(t)
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{UserQuery: "label:inbox"})

	// A run without its own query inherits the configured one.
	if _, err := exec.Run(context.Background(), RunOptions{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.listQueries) != 1 || provider.listQueries[0] != "(label:inbox) AND (from:newsletter@)" {
		t.Errorf("list queries: %v", provider.listQueries)
	}

	// A run that carries a query keeps it.
	if _, err := exec.Run(context.Background(), RunOptions{UserQuery: "is:unread"}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.listQueries) != 2 || provider.listQueries[1] != "(is:unread) AND (from:newsletter@)" {
		t.Errorf("list queries: %v", provider.listQueries)
	}
}

func TestRun_RuleSelection(t *testing.T) {
	provider := newFakeProvider()
	provider.pages["from:a@"] = [][]gmail.MessageRef{refsFor("a", 0, 1)}
	provider.pages["from:b@"] = [][]gmail.MessageRef{refsFor("b", 0, 1)}

	ruleA, err := rules.NewRule("Rule A", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "a@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	ruleB, err := rules.NewRule("Rule B", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "b@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	disabled, err := rules.NewRule("Disabled", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "c@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	disabled.Enabled = false

	store := &fakeStore{rules: []*rules.Rule{ruleA, ruleB, disabled}}
	exec := newTestExecutor(provider, store, Config{})

	// Select by case-insensitive name.
	summary, runErr := exec.Run(context.Background(), RunOptions{RuleIDs: []string{"rule b"}}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if len(summary.RulesApplied) != 1 {
		t.Fatalf("rules applied: %+v", summary.RulesApplied)
	}
	if summary.RulesApplied[ruleB.ID] != 1 {
		t.Errorf("expected rule B to run, got %+v", summary.RulesApplied)
	}
	for _, q := range provider.listQueries {
		if q == "from:a@" || q == "from:c@" {
			t.Errorf("unselected rule queried the provider: %s", q)
		}
	}
}

func TestRun_NoRules(t *testing.T) {
	provider := newFakeProvider()
	exec := newTestExecutor(provider, &fakeStore{}, Config{})

	summary, err := exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Message == "" {
		t.Error("expected a no-rules message")
	}
	if provider.listCalls != 0 {
		t.Errorf("no rules should mean no provider calls, got %d", provider.listCalls)
	}
}

func TestRun_StoreLoadFailure(t *testing.T) {
	provider := newFakeProvider()
	store := &fakeStore{err: &rules.ParseError{Path: "rules.json", Err: errors.New("bad json")}}
	exec := newTestExecutor(provider, store, Config{})

	if _, err := exec.Run(context.Background(), RunOptions{}, nil); err == nil {
		t.Fatal("expected a parse failure to fail the run")
	}
}

func TestRun_ChunkedFlush(t *testing.T) {
	provider := newFakeProvider()
	provider.pages["from:bulk@"] = [][]gmail.MessageRef{refsFor("c", 0, 5)}

	rule, err := rules.NewRule("bulk", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "bulk@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{FlushChunkSize: 2})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if len(provider.trashCalls) != 3 {
		t.Fatalf("expected 3 chunks of <=2, got %d", len(provider.trashCalls))
	}
	sizes := []int{len(provider.trashCalls[0]), len(provider.trashCalls[1]), len(provider.trashCalls[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}
	if summary.Actions["trash"].Count != 5 {
		t.Errorf("trash count = %d, want 5", summary.Actions["trash"].Count)
	}
}

func TestRun_ChunkFailureIsolated(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["from:newsletter@"] = [][]gmail.MessageRef{refsFor("m", 0, 6)}
	provider.modifyErrOn[2] = &gmail.ProviderError{Op: "batch_modify", Code: 500, Message: "backend error"}

	rule := mustAddLabelRule(t)
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{FlushChunkSize: 2})

	summary, err := exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(provider.modifyCalls) != 3 {
		t.Fatalf("expected all 3 chunks attempted, got %d", len(provider.modifyCalls))
	}
	if got := summary.Actions["add_label:News"].Count; got != 4 {
		t.Errorf("count = %d, want 4 (only successful chunks)", got)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("errors: %+v", summary.Errors)
	}
	if summary.Errors[0].Kind != ErrorKindProviderFatal && summary.Errors[0].Kind != ErrorKindProviderTransient {
		t.Errorf("error kind = %s", summary.Errors[0].Kind)
	}
}

func TestRun_UnresolvableLabelSkipsAction(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_1", Name: "SomethingElse"}}
	provider.pages["from:newsletter@"] = [][]gmail.MessageRef{refsFor("m", 0, 3)}

	rule := mustAddLabelRule(t) // wants label "News", which does not exist
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})

	summary, err := exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(provider.modifyCalls) != 0 {
		t.Errorf("unresolvable label must not modify anything: %+v", provider.modifyCalls)
	}
	if got := summary.Actions["add_label:News"].Count; got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Kind != ErrorKindNotFound {
		t.Fatalf("errors: %+v", summary.Errors)
	}
	if provider.listLabelCalls > 2 {
		t.Errorf("unresolved label lookup made %d label listings, want at most 2", provider.listLabelCalls)
	}
}

func TestRun_MissingCandidateSkipped(t *testing.T) {
	provider := newFakeProvider()
	refs := refsFor("d", 0, 3)
	provider.pages[""] = [][]gmail.MessageRef{refs}
	provider.messages["d000"] = stubMessage("d000", "x@y.com", "s", "invoice one")
	provider.messages["d002"] = stubMessage("d002", "x@y.com", "s", "invoice two")
	provider.getErrs["d001"] = &gmail.NotFoundError{Resource: "message", ID: "d001"}

	rule, err := rules.NewRule("invoices", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "invoice"}},
		[]rules.Action{{Type: rules.ActionMarkRead}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.EmailsMatchingAnyRule != 2 {
		t.Errorf("matched = %d, want 2 (missing candidate skipped)", summary.EmailsMatchingAnyRule)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("errors: %+v", summary.Errors)
	}
	e := summary.Errors[0]
	if e.Kind != ErrorKindNotFound || e.EmailID != "d001" || e.RuleID != rule.ID {
		t.Errorf("error entry: %+v", e)
	}
}

// Cancellation mid-run stops scanning within one candidate's worth of work
// and performs no writes afterwards.
func TestRun_CancellationMidRun(t *testing.T) {
	provider := newFakeProvider()
	provider.pages["from:bulk@"] = [][]gmail.MessageRef{
		refsFor("c", 0, 50),
		refsFor("c", 50, 50),
		refsFor("c", 100, 50),
	}

	ctx, cancel := context.WithCancel(context.Background())
	provider.afterList = func(call int) {
		if call == 2 {
			cancel()
		}
	}

	rule, err := rules.NewRule("bulk", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "bulk@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(ctx, RunOptions{}, nil)

	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	if summary == nil {
		t.Fatal("cancelled run should still return the partial summary")
	}
	if provider.writeCount() != 0 {
		t.Errorf("no writes may happen after cancellation, got %d", provider.writeCount())
	}
	if summary.EmailsMatchingAnyRule != 50 {
		t.Errorf("matched = %d, want the 50 from the first page", summary.EmailsMatchingAnyRule)
	}

	cancelledEntries := 0
	for _, e := range summary.Errors {
		if e.Kind == ErrorKindCancelled {
			cancelledEntries++
		}
	}
	if cancelledEntries != 1 {
		t.Errorf("cancellation should be recorded exactly once, got %d", cancelledEntries)
	}
}

// A listing failure skips the rest of that rule but the run continues with
// the remaining rules.
func TestRun_ListFailureSkipsRule(t *testing.T) {
	provider := newFakeProvider()
	provider.listErrs["from:broken@"] = &gmail.ProviderError{Op: "list_messages", Code: 400, Message: "invalid query"}
	provider.pages["from:ok@"] = [][]gmail.MessageRef{refsFor("k", 0, 2)}

	broken, err := rules.NewRule("broken", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "broken@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	healthy, err := rules.NewRule("ok", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "ok@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{broken, healthy}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.RulesApplied[healthy.ID] != 2 {
		t.Errorf("healthy rule should still run: %+v", summary.RulesApplied)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("errors: %+v", summary.Errors)
	}
	e := summary.Errors[0]
	if e.RuleID != broken.ID || e.Kind != ErrorKindProviderFatal {
		t.Errorf("error entry: %+v", e)
	}
	if len(provider.trashCalls) != 1 || len(provider.trashCalls[0]) != 2 {
		t.Errorf("trash calls: %+v", provider.trashCalls)
	}
}

func TestRun_ScanLimit(t *testing.T) {
	provider := newFakeProvider()
	provider.pages["from:bulk@"] = [][]gmail.MessageRef{
		refsFor("c", 0, 50),
		refsFor("c", 50, 50),
		refsFor("c", 100, 50),
	}

	rule, err := rules.NewRule("bulk", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "bulk@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{ScanLimit: 100}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.TotalEmailsScanned != 100 {
		t.Errorf("scanned = %d, want capped at 100", summary.TotalEmailsScanned)
	}
	if provider.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", provider.listCalls)
	}
}

// An OR rule with an untranslatable branch must not issue the partial query:
// it lists with no narrowing and evaluates everything client-side.
func TestRun_PartialOrFetchesEverything(t *testing.T) {
	provider := newFakeProvider()
	refs := refsFor("o", 0, 4)
	provider.pages[""] = [][]gmail.MessageRef{refs}
	provider.messages["o000"] = stubMessage("o000", "x@acme.com", "s", "nothing")
	provider.messages["o001"] = stubMessage("o001", "other@example.com", "s", "urgent request")
	provider.messages["o002"] = stubMessage("o002", "other@example.com", "s", "calm")
	provider.messages["o003"] = stubMessage("o003", "y@acme.com", "s", "calm")

	rule, err := rules.NewRule("either", rules.ConjunctionOr,
		[]rules.Condition{
			{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "@acme.com"},
			{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "urgent"},
		},
		[]rules.Action{{Type: rules.ActionMarkUnread}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if provider.listQueries[0] != "" {
		t.Errorf("partial OR must list without narrowing, got %q", provider.listQueries[0])
	}
	if provider.getCalls != 4 {
		t.Errorf("expected every candidate fetched, got %d", provider.getCalls)
	}
	if summary.EmailsMatchingAnyRule != 3 {
		t.Errorf("matched = %d, want 3 (two acme senders + one urgent)", summary.EmailsMatchingAnyRule)
	}
	if len(provider.markReadCalls) != 1 || provider.markReadCalls[0].read {
		t.Fatalf("mark_unread calls: %+v", provider.markReadCalls)
	}
}

func TestRun_PermanentDeleteGate(t *testing.T) {
	refs := [][]gmail.MessageRef{refsFor("p", 0, 2)}

	rule := &rules.Rule{
		ID:          "purge-1",
		Name:        "purge",
		Enabled:     true,
		Conjunction: rules.ConjunctionAnd,
		Conditions:  []rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "junk@"}},
		Actions:     []rules.Action{{Type: rules.ActionDeletePermanent}},
	}

	// Disabled: the action is skipped with a warning, nothing is deleted.
	provider := newFakeProvider()
	provider.pages["from:junk@"] = refs
	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, err := exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.deleteCalls) != 0 {
		t.Errorf("permanent delete ran while disabled: %+v", provider.deleteCalls)
	}
	if summary.EmailsMatchingAnyRule != 2 {
		t.Errorf("matching still counts with skipped actions, got %d", summary.EmailsMatchingAnyRule)
	}

	// Enabled: flushed through the batch delete verb.
	provider = newFakeProvider()
	provider.pages["from:junk@"] = refs
	exec = newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{AllowPermanentDelete: true})
	summary, err = exec.Run(context.Background(), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.deleteCalls) != 1 || len(provider.deleteCalls[0]) != 2 {
		t.Fatalf("delete calls: %+v", provider.deleteCalls)
	}
	if summary.Actions["delete_permanent"].Count != 2 {
		t.Errorf("delete count = %d, want 2", summary.Actions["delete_permanent"].Count)
	}
}

// Rules compose additively: an email matched by two rules receives both
// rules' actions, and per-action ids are deduplicated.
func TestRun_MultipleRulesCompose(t *testing.T) {
	provider := newFakeProvider()
	provider.pages["from:news@"] = [][]gmail.MessageRef{refsFor("n", 0, 3)} // n000..n002
	provider.pages["from:n"] = [][]gmail.MessageRef{refsFor("n", 1, 3)}     // n001..n003

	first, err := rules.NewRule("news", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "news@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := rules.NewRule("n-ish", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "n"}},
		[]rules.Action{{Type: rules.ActionTrash}, {Type: rules.ActionMarkRead}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{first, second}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.TotalEmailsScanned != 6 {
		t.Errorf("scanned = %d, want 6 (3 per rule)", summary.TotalEmailsScanned)
	}
	if summary.EmailsMatchingAnyRule != 4 {
		t.Errorf("unique matched = %d, want 4", summary.EmailsMatchingAnyRule)
	}
	if summary.RulesApplied[first.ID] != 3 || summary.RulesApplied[second.ID] != 3 {
		t.Errorf("per-rule counts: %+v", summary.RulesApplied)
	}
	// trash aggregates both rules' matches deduplicated: n000..n003.
	if got := summary.Actions["trash"].Count; got != 4 {
		t.Errorf("trash count = %d, want 4", got)
	}
	if got := summary.Actions["mark_read"].Count; got != 3 {
		t.Errorf("mark_read count = %d, want 3", got)
	}
}

func TestRun_ReportsProgress(t *testing.T) {
	provider := newFakeProvider()
	provider.labels = []gmail.Label{{ID: "Label_5", Name: "News"}}
	provider.pages["from:newsletter@"] = [][]gmail.MessageRef{refsFor("m", 0, 5)}

	rule := mustAddLabelRule(t)
	store := &fakeStore{rules: []*rules.Rule{rule}}
	resolver := gmail.NewLabelResolver(provider)

	tracker := progress.NewTracker(time.Millisecond, 100, slogDiscard())
	exec := NewExecutor(provider, resolver, store, tracker, Config{}, slogDiscard())

	var percents []float64
	_, err := exec.Run(context.Background(), RunOptions{}, func(percent float64, message string) {
		percents = append(percents, percent)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(percents) == 0 {
		t.Fatal("expected progress callbacks")
	}
	last := percents[len(percents)-1]
	if last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards at %d: %v -> %v", i, percents[i-1], percents[i])
		}
	}
}

func TestCombineQueries(t *testing.T) {
	testCases := []struct {
		user, rule, want string
	}{
		{"", "from:x", "from:x"},
		{"is:unread", "", "is:unread"},
		{"is:unread", "from:x", "(is:unread) AND (from:x)"},
		{"", "", ""},
		{"  is:unread  ", "from:x", "(is:unread) AND (from:x)"},
	}
	for _, tc := range testCases {
		if got := combineQueries(tc.user, tc.rule); got != tc.want {
			t.Errorf("combineQueries(%q, %q) = %q, want %q", tc.user, tc.rule, got, tc.want)
		}
	}
}

func TestRun_SequentialFetchDegenerate(t *testing.T) {
	provider := newFakeProvider()
	refs := refsFor("d", 0, 6)
	provider.pages[""] = [][]gmail.MessageRef{refs}
	for _, ref := range refs {
		provider.messages[ref.ID] = stubMessage(ref.ID, "x@y.com", "s", "invoice")
	}

	rule, err := rules.NewRule("invoices", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "invoice"}},
		[]rules.Action{{Type: rules.ActionMarkRead}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{FetchConcurrency: 1})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if summary.EmailsMatchingAnyRule != 6 {
		t.Errorf("matched = %d, want 6", summary.EmailsMatchingAnyRule)
	}
	if provider.getCalls != 6 {
		t.Errorf("get calls = %d, want 6", provider.getCalls)
	}
}

func TestRun_DuplicateCandidatesCountedOnce(t *testing.T) {
	provider := newFakeProvider()
	dup := gmail.MessageRef{ID: "same", ThreadID: "t-same"}
	provider.pages["from:dup@"] = [][]gmail.MessageRef{
		{dup, dup},
		{dup},
	}

	rule, err := rules.NewRule("dups", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldFrom, Operator: rules.OpContains, Value: "dup@"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}

	exec := newTestExecutor(provider, &fakeStore{rules: []*rules.Rule{rule}}, Config{})
	summary, runErr := exec.Run(context.Background(), RunOptions{}, nil)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.RulesApplied[rule.ID] != 1 {
		t.Errorf("duplicate candidate counted %d times for the rule", summary.RulesApplied[rule.ID])
	}
	if len(provider.trashCalls) != 1 || len(provider.trashCalls[0]) != 1 {
		t.Errorf("trash calls: %+v", provider.trashCalls)
	}
}

// Two rules sharing candidates fetch each message's details once; the
// second rule is served from the run-scoped cache.
func TestRun_DetailsCachedAcrossRules(t *testing.T) {
	script := func(p *fakeProvider) {
		refs := refsFor("d", 0, 4)
		p.pages[""] = [][]gmail.MessageRef{refs}
		for _, ref := range refs {
			p.messages[ref.ID] = stubMessage(ref.ID, "x@y.com", "s", "invoice")
		}
	}

	invoices, err := rules.NewRule("invoices", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "invoice"}},
		[]rules.Action{{Type: rules.ActionMarkRead}})
	if err != nil {
		t.Fatal(err)
	}
	receipts, err := rules.NewRule("receipts", rules.ConjunctionAnd,
		[]rules.Condition{{Field: rules.FieldBodySnippet, Operator: rules.OpContains, Value: "receipt"}},
		[]rules.Action{{Type: rules.ActionTrash}})
	if err != nil {
		t.Fatal(err)
	}
	store := &fakeStore{rules: []*rules.Rule{invoices, receipts}}

	provider := newFakeProvider()
	script(provider)
	exec := newTestExecutor(provider, store, Config{})
	if _, err := exec.Run(context.Background(), RunOptions{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.getCalls != 4 {
		t.Errorf("get calls = %d, want 4 (second rule served from cache)", provider.getCalls)
	}

	provider = newFakeProvider()
	script(provider)
	exec = newTestExecutor(provider, store, Config{DisableDetailsCache: true})
	if _, err := exec.Run(context.Background(), RunOptions{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.getCalls != 8 {
		t.Errorf("get calls = %d, want 8 with the cache disabled", provider.getCalls)
	}
}

func TestErrorKindMapping(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{&gmail.InvalidParameterError{Param: "x", Reason: "y"}, ErrorKindInvalidParameter},
		{&gmail.NotFoundError{Resource: "message", ID: "m"}, ErrorKindNotFound},
		{&gmail.ProviderError{Op: "list", Code: 429, Retryable: true, RateLimit: true}, ErrorKindProviderTransient},
		{&gmail.ProviderError{Op: "list", Code: 403}, ErrorKindProviderFatal},
		{&rules.IOError{Op: "read", Path: "p", Err: errors.New("x")}, ErrorKindStoreIO},
		{&rules.ParseError{Path: "p", Err: errors.New("x")}, ErrorKindStoreParse},
		{context.Canceled, ErrorKindCancelled},
		{fmt.Errorf("wrapped: %w", context.Canceled), ErrorKindCancelled},
		{errors.New("anything else"), ErrorKindProviderFatal},
	}

	for _, tc := range testCases {
		if got := classifyErrorKind(tc.err); got != tc.want {
			t.Errorf("classifyErrorKind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSummaryErrorDetails(t *testing.T) {
	s := newRunSummary(false)
	s.addError("rule-1", "m-1", &gmail.NotFoundError{Resource: "message", ID: "m-1"})

	if len(s.Errors) != 1 {
		t.Fatalf("errors: %+v", s.Errors)
	}
	e := s.Errors[0]
	if e.RuleID != "rule-1" || e.EmailID != "m-1" || e.Kind != ErrorKindNotFound {
		t.Errorf("entry: %+v", e)
	}
	if !strings.Contains(e.Details, "not found") {
		t.Errorf("details: %q", e.Details)
	}
}
