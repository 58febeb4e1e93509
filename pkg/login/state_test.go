package login

import "testing"

func TestState_Valid(t *testing.T) {
	for _, s := range []State{StateIdle, StateClassifying, StateAwaitingKey, StateVerifying, StateCompleted} {
		if !s.Valid() {
			t.Errorf("State(%q).Valid() = false, want true", s)
		}
	}
	for _, s := range []State{"", "running", "IDLE"} {
		if s.Valid() {
			t.Errorf("State(%q).Valid() = true, want false", s)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	if !StateCompleted.IsTerminal() {
		t.Error("StateCompleted.IsTerminal() = false, want true")
	}
	for _, s := range []State{StateIdle, StateClassifying, StateAwaitingKey, StateVerifying} {
		if s.IsTerminal() {
			t.Errorf("State(%q).IsTerminal() = true, want false", s)
		}
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateClassifying, true},
		{StateClassifying, StateAwaitingKey, true},
		{StateClassifying, StateVerifying, true},
		{StateClassifying, StateCompleted, true},
		{StateAwaitingKey, StateVerifying, true},
		{StateAwaitingKey, StateCompleted, true},
		{StateVerifying, StateCompleted, true},

		{StateIdle, StateVerifying, false},
		{StateIdle, StateCompleted, false},
		{StateVerifying, StateAwaitingKey, false},
		{StateCompleted, StateIdle, false},
		{StateCompleted, StateVerifying, false},
		{StateVerifying, StateVerifying, false},
		{"bogus", StateCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
