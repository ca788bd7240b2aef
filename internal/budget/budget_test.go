package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate_CharHeuristic(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single char rounds up", "q", 1},
		{"exactly one token", "abcd", 1},
		{"partial second token rounds down", "abcdefg", 1},
		{"two tokens", "abcdefgh", 2},
		{"long text", strings.Repeat("d", 400), 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tc.input); got != tc.want {
				t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func Test_EstimateMessages_SumsWithOverhead(t *testing.T) {
	t.Parallel()
	// Per message: 4 overhead + Estimate("user")=1 + Estimate("key rotation")=3.
	msgs := []*schema.Message{
		schema.UserMessage("key rotation"),
		schema.UserMessage("key rotation"),
	}
	if got := EstimateMessages(msgs); got != 16 {
		t.Errorf("EstimateMessages = %d, want 16", got)
	}
}

func Test_TrimHistory_KeepsAllWithinBudget(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	history := []*schema.Message{
		schema.UserMessage("how do I rotate keys?"),
		schema.AssistantMessage("Run the rotation job.", nil),
	}
	got := TrimHistory(fixed, history, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 history messages, got %d", len(got))
	}
}

func Test_TrimHistory_DropsOldestFirst(t *testing.T) {
	t.Parallel()
	// Each history message costs 4 overhead + 1 (role) + 1 (content) = 6
	// tokens, so a budget of 7 with no fixed messages fits exactly one.
	history := []*schema.Message{
		schema.UserMessage("oldest"),
		schema.UserMessage("newest"),
	}
	got := TrimHistory(nil, history, 7)
	if len(got) != 1 {
		t.Fatalf("want 1 history message after trim, got %d", len(got))
	}
	if got[0].Content != "newest" {
		t.Errorf("want newest message retained, got %q", got[0].Content)
	}
}

func Test_TrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	if got := TrimHistory(fixed, nil, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimHistory_FixedAloneOverBudget(t *testing.T) {
	t.Parallel()
	// When the fixed messages already exceed the budget no history fits.
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("d", 4*7000)),
	}
	history := []*schema.Message{
		schema.UserMessage("a"),
		schema.UserMessage("b"),
	}
	if got := TrimHistory(fixed, history, 6000); len(got) != 0 {
		t.Errorf("want 0 history messages, got %d", len(got))
	}
}
