package dialog

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"yes", IntentAffirmative},
		{"YES", IntentAffirmative},
		{"  yep  ", IntentAffirmative},
		{"okay", IntentAffirmative},
		{"y", IntentAffirmative},
		{"no", IntentNegative},
		{"Nope", IntentNegative},
		{" never ", IntentNegative},
		{"n", IntentNegative},
		{"yes please", IntentUnmatched},
		{"not really", IntentUnmatched},
		{"maybe", IntentUnmatched},
		{"", IntentUnmatched},
		{"yesno", IntentUnmatched},
	}
	for _, tc := range cases {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSelectBranchDefaultEvaluatedLast(t *testing.T) {
	// The default sits first in the list but must only win when every
	// matcher has failed.
	branches := []Branch{
		{Default: true},
		{Match: MatchAffirmative},
		{Match: MatchNegative},
	}

	if br := selectBranch(branches, "yes"); br == nil || br.Default {
		t.Fatalf("affirmative reply selected the default branch")
	}
	if br := selectBranch(branches, "no"); br == nil || br.Default {
		t.Fatalf("negative reply selected the default branch")
	}
	if br := selectBranch(branches, "banana"); br == nil || !br.Default {
		t.Fatalf("unmatched reply did not fall through to the default")
	}
}

func TestSelectBranchNoDefault(t *testing.T) {
	branches := []Branch{{Match: MatchAffirmative}}
	if br := selectBranch(branches, "something else"); br != nil {
		t.Fatalf("expected nil for unmatched reply without a default, got %+v", br)
	}
}

func TestSelectBranchFirstMatchWins(t *testing.T) {
	any1, _ := MatchPattern(".*")
	any2, _ := MatchPattern(".*")
	branches := []Branch{
		{Match: any1},
		{Match: any2},
	}
	if br := selectBranch(branches, "hello"); br != &branches[0] {
		t.Fatalf("expected the first matching branch to win")
	}
}

func TestValidateBranches(t *testing.T) {
	if err := validateBranches([]Branch{{Default: true}, {Default: true}}); err == nil {
		t.Error("two defaults accepted")
	}
	if err := validateBranches([]Branch{{}}); err == nil {
		t.Error("branch without matcher or default accepted")
	}
	if err := validateBranches([]Branch{{Match: MatchNegative}, {Default: true}}); err != nil {
		t.Errorf("valid branch list rejected: %v", err)
	}
}

func TestMatchPattern(t *testing.T) {
	m, err := MatchPattern("play (.*)")
	if err != nil {
		t.Fatalf("MatchPattern: %v", err)
	}
	if !m("let's PLAY chess") {
		t.Error("case-insensitive unanchored pattern did not match")
	}
	if m("nothing here") {
		t.Error("pattern matched unrelated text")
	}

	if _, err := MatchPattern("("); err == nil {
		t.Error("invalid pattern accepted")
	}
}
