package automation

import "testing"

func TestEvaluateConditions_EmptyIsTrue(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{}}
	if !EvaluateConditions(nil, state, nil, nil) {
		t.Fatal("expected empty condition map to evaluate true")
	}
}

func TestEvaluateConditions_BareKeyNeverFallsBackToAlias(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{"value": 10.0}}
	aliases := AliasTable{"value": "some/other/key"}

	// "value" names a triggering attribute here, so this should compare
	// against it, not resolve through the alias table (conditions never
	// fall back bare-name-to-alias, unlike the placeholder formatter).
	if !EvaluateConditions(map[string]string{"value": ">5"}, state, aliases, nil) {
		t.Fatal("expected value>5 to hold against the triggering attribute")
	}

	// A bare key that names only an alias (no such attribute) must not
	// resolve to the alias's entity key.
	if EvaluateConditions(map[string]string{"other": "some/other/key"}, state, AliasTable{"other": "some/other/key"}, nil) {
		t.Fatal("expected a bare alias name with no matching attribute to evaluate false")
	}
}

func TestEvaluateConditions_Numeric(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{"temp": 22.0}}

	cases := []struct {
		cond string
		want bool
	}{
		{">20", true},
		{">=22", true},
		{"<20", false},
		{"<=22", true},
		{"==22", true},
		{"!=22", false},
	}
	for _, c := range cases {
		got := EvaluateConditions(map[string]string{"temp": c.cond}, state, nil, nil)
		if got != c.want {
			t.Errorf("temp%s = %v, want %v", c.cond, got, c.want)
		}
	}
}

func TestEvaluateConditions_Bool(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{"occupied": true}}

	if !EvaluateConditions(map[string]string{"occupied": "==true"}, state, nil, nil) {
		t.Fatal("expected occupied==true")
	}
	if EvaluateConditions(map[string]string{"occupied": "==false"}, state, nil, nil) {
		t.Fatal("expected occupied==false to be false")
	}
	// unsupported operator on bool defaults to false
	if EvaluateConditions(map[string]string{"occupied": ">true"}, state, nil, nil) {
		t.Fatal("expected unsupported bool operator to evaluate false")
	}
}

func TestEvaluateConditions_String(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{"mode": "armed"}}
	if !EvaluateConditions(map[string]string{"mode": "armed"}, state, nil, nil) {
		t.Fatal("expected default operator == to match")
	}
	if EvaluateConditions(map[string]string{"mode": "!=armed"}, state, nil, nil) {
		t.Fatal("expected mode!=armed to be false")
	}
}

func TestEvaluateConditions_PreviousPrefix(t *testing.T) {
	state := &StateObject{
		Attributes: map[string]any{"value": 30.0},
		Previous:   &StateObject{Attributes: map[string]any{"value": 10.0}},
	}
	if !EvaluateConditions(map[string]string{"previous.value": "<20"}, state, nil, nil) {
		t.Fatal("expected previous.value<20 to hold")
	}
}

func TestEvaluateConditions_AliasAttr(t *testing.T) {
	state := &StateObject{
		Attributes: map[string]any{"value": 1.0},
		Snapshot: Snapshot{
			"door": RawEvent{Attributes: map[string]any{"state": "open"}},
		},
	}
	if !EvaluateConditions(map[string]string{"door.state": "open"}, state, nil, nil) {
		t.Fatal("expected door.state==open to hold")
	}
}

func TestEvaluateConditions_UnresolvedKeyFails(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{}}
	var calls []string
	got := EvaluateConditions(map[string]string{"missing": "1"}, state, nil, func(p string) { calls = append(calls, p) })
	if got {
		t.Fatal("expected unresolved LHS to evaluate false")
	}
	if len(calls) != 1 || calls[0] != "missing" {
		t.Fatalf("expected unresolved callback for missing key, got %v", calls)
	}
}

func TestEvaluateConditions_UnresolvedRHSPlaceholderFails(t *testing.T) {
	state := &StateObject{Attributes: map[string]any{"value": 1.0}}
	got := EvaluateConditions(map[string]string{"value": "=={missing}"}, state, nil, nil)
	if got {
		t.Fatal("expected unresolvable RHS placeholder to evaluate false")
	}
}

func TestParseRHS_DefaultsToEquals(t *testing.T) {
	op, val := parseRHS("armed")
	if op != "==" || val != "armed" {
		t.Fatalf("got op=%q val=%q", op, val)
	}
}

func TestParseRHS_LongestMatchFirst(t *testing.T) {
	op, val := parseRHS(">=10")
	if op != ">=" || val != "10" {
		t.Fatalf("got op=%q val=%q, want >= and 10", op, val)
	}
}
