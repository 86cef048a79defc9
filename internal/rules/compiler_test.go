package rules

import "testing"

func TestTranslateCondition(t *testing.T) {
	testCases := []struct {
		name string
		cond Condition
		want string
		ok   bool
	}{
		{"from contains", Condition{FieldFrom, OpContains, "news@acme.com"}, "from:news@acme.com", true},
		{"from equals", Condition{FieldFrom, OpEquals, "news@acme.com"}, "from:(news@acme.com)", true},
		{"from not contains", Condition{FieldFrom, OpNotContains, "spam"}, "-from:spam", true},
		{"from not equals", Condition{FieldFrom, OpNotEquals, "me@acme.com"}, "-from:me@acme.com", true},
		{"from starts_with untranslatable", Condition{FieldFrom, OpStartsWith, "news"}, "", false},
		{"to contains", Condition{FieldTo, OpContains, "team@"}, "to:team@", true},
		{"subject contains", Condition{FieldSubject, OpContains, "invoice"}, "subject:invoice", true},
		{"subject contains with spaces", Condition{FieldSubject, OpContains, "weekly report"}, `subject:"weekly report"`, true},
		{"subject equals", Condition{FieldSubject, OpEquals, "Your receipt"}, `subject:("Your receipt")`, true},
		{"subject not contains", Condition{FieldSubject, OpNotContains, "urgent"}, "-subject:urgent", true},
		{"subject not equals", Condition{FieldSubject, OpNotEquals, "Re: hi"}, `-subject:("Re: hi")`, true},
		{"label contains", Condition{FieldLabel, OpContains, "News"}, "label:News", true},
		{"label not contains", Condition{FieldLabel, OpNotContains, "Keep"}, "-label:Keep", true},
		{"label equals untranslatable", Condition{FieldLabel, OpEquals, "News"}, "", false},
		{"older than", Condition{FieldDateAge, OpOlderThan, "30d"}, "older_than:30d", true},
		{"newer than", Condition{FieldDateAge, OpNewerThan, "1y"}, "newer_than:1y", true},
		{"bad age shape", Condition{FieldDateAge, OpOlderThan, "30 days"}, "", false},
		{"bad age unit", Condition{FieldDateAge, OpOlderThan, "30w"}, "", false},
		{"has attachment true", Condition{FieldHasAttachment, OpIs, "true"}, "has:attachment", true},
		{"has attachment false", Condition{FieldHasAttachment, OpIs, "false"}, "-has:attachment", true},
		{"has attachment junk value", Condition{FieldHasAttachment, OpIs, "maybe"}, "", false},
		{"filename contains", Condition{FieldAttachmentFilename, OpContains, "report.pdf"}, "filename:report.pdf", true},
		{"filename with spaces", Condition{FieldAttachmentFilename, OpEquals, "q3 report.pdf"}, `filename:"q3 report.pdf"`, true},
		{"filename not contains", Condition{FieldAttachmentFilename, OpNotContains, "exe"}, "-filename:exe", true},
		{"size greater", Condition{FieldMessageSize, OpGreaterThan, "10M"}, "larger:10M", true},
		{"size less", Condition{FieldMessageSize, OpLessThan, "500K"}, "smaller:500K", true},
		{"size bytes", Condition{FieldMessageSize, OpGreaterThan, "1048576"}, "larger:1048576", true},
		{"bad size shape", Condition{FieldMessageSize, OpGreaterThan, "10 MB"}, "", false},
		{"body never translates", Condition{FieldBody, OpContains, "unsubscribe"}, "", false},
		{"snippet never translates", Condition{FieldBodySnippet, OpContains, "invoice"}, "", false},
		{"empty value", Condition{FieldFrom, OpContains, "  "}, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translateCondition(tc.cond)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("fragment = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCompile_CompleteAnd(t *testing.T) {
	rule := &Rule{
		Name:        "old big mail",
		Conjunction: ConjunctionAnd,
		Conditions: []Condition{
			{FieldFrom, OpContains, "newsletter@"},
			{FieldDateAge, OpOlderThan, "30d"},
		},
		Actions: []Action{{Type: ActionTrash}},
	}

	compiled := Compile(rule)
	if compiled.Query != "from:newsletter@ older_than:30d" {
		t.Errorf("query = %q", compiled.Query)
	}
	if compiled.NeedsDetails {
		t.Error("fully translatable AND rule should not need details")
	}
	if compiled.NeedsBody {
		t.Error("no body condition, NeedsBody should be false")
	}
}

func TestCompile_CompleteOr(t *testing.T) {
	rule := &Rule{
		Name:        "either sender",
		Conjunction: ConjunctionOr,
		Conditions: []Condition{
			{FieldFrom, OpContains, "a@x.com"},
			{FieldFrom, OpContains, "b@x.com"},
		},
		Actions: []Action{{Type: ActionMarkRead}},
	}

	compiled := Compile(rule)
	if compiled.Query != "from:a@x.com OR from:b@x.com" {
		t.Errorf("query = %q", compiled.Query)
	}
	if compiled.NeedsDetails {
		t.Error("fully translatable OR rule should not need details")
	}
}

func TestCompile_PartialAnd(t *testing.T) {
	rule := &Rule{
		Name:        "urgent from acme",
		Conjunction: ConjunctionAnd,
		Conditions: []Condition{
			{FieldFrom, OpContains, "@acme.com"},
			{FieldBodySnippet, OpContains, "urgent"},
		},
		Actions: []Action{{Type: ActionAddLabel, LabelName: "Urgent"}},
	}

	compiled := Compile(rule)
	if compiled.Query != "from:@acme.com" {
		t.Errorf("partial AND should keep translatable fragments, got %q", compiled.Query)
	}
	if !compiled.NeedsDetails {
		t.Error("untranslatable condition must force details")
	}
	if !compiled.NeedsBody {
		t.Error("snippet condition must force body fetch")
	}
}

func TestCompile_PartialOrDropsQuery(t *testing.T) {
	rule := &Rule{
		Name:        "or with residue",
		Conjunction: ConjunctionOr,
		Conditions: []Condition{
			{FieldFrom, OpContains, "@acme.com"},
			{FieldBodySnippet, OpContains, "urgent"},
		},
		Actions: []Action{{Type: ActionTrash}},
	}

	compiled := Compile(rule)
	if compiled.Query != "" {
		t.Errorf("a partial OR query would narrow incorrectly; got %q", compiled.Query)
	}
	if !compiled.NeedsDetails {
		t.Error("partial OR must force details")
	}
}

func TestCompile_BodyOnly(t *testing.T) {
	rule := &Rule{
		Name:        "invoices",
		Conjunction: ConjunctionAnd,
		Conditions:  []Condition{{FieldBodySnippet, OpContains, "invoice"}},
		Actions:     []Action{{Type: ActionAddLabel, LabelName: "Invoices"}},
	}

	compiled := Compile(rule)
	if compiled.Query != "" {
		t.Errorf("query = %q, want empty", compiled.Query)
	}
	if !compiled.NeedsDetails || !compiled.NeedsBody {
		t.Errorf("body-only rule: NeedsDetails=%v NeedsBody=%v, want both true", compiled.NeedsDetails, compiled.NeedsBody)
	}
}

func TestCompile_EmptyConditions(t *testing.T) {
	rule := &Rule{Name: "empty", Conjunction: ConjunctionAnd, Actions: []Action{{Type: ActionTrash}}}

	compiled := Compile(rule)
	if compiled.Query != "" || !compiled.NeedsDetails {
		t.Errorf("empty rule must not trust the server query: %+v", compiled)
	}
}
