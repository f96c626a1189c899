package core

import (
	"fmt"
	"testing"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name string
		st   ProgressState
		want int
	}{
		{"unknown total", ProgressState{Total: -1, Processed: 3}, 0},
		{"zero of ten", ProgressState{Total: 10}, 0},
		{"partial", ProgressState{Total: 10, Processed: 4}, 40},
		{"all", ProgressState{Total: 10, Processed: 10}, 100},
		{"complete with zero total", ProgressState{Total: 0, Phase: PhaseComplete}, 100},
	}

	for _, tt := range tests {
		if got := tt.st.Percent(); got != tt.want {
			t.Errorf("%s: Percent() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestProgressMessageBound(t *testing.T) {
	var st ProgressState
	for i := 0; i < maxDiagnostics+7; i++ {
		st.AddMessage(fmt.Sprintf("record %d: boom", i))
	}

	if len(st.Messages) != maxDiagnostics {
		t.Errorf("messages = %d, want capped at %d", len(st.Messages), maxDiagnostics)
	}
	if st.Dropped != 7 {
		t.Errorf("dropped = %d, want 7", st.Dropped)
	}

	sum := st.Summary()
	if len(sum.Messages) != maxDiagnostics || sum.Dropped != 7 {
		t.Errorf("summary = %d messages %d dropped, want %d and 7", len(sum.Messages), sum.Dropped, maxDiagnostics)
	}
}

func TestEffectiveDefaults(t *testing.T) {
	spec := &SourceSpec{}
	if got := spec.EffectiveChunkLimit(); got != DefaultChunkLimit {
		t.Errorf("EffectiveChunkLimit() = %d, want %d", got, DefaultChunkLimit)
	}
	if got := spec.EffectivePolicy(); got != PolicyUpdateChanged {
		t.Errorf("EffectivePolicy() = %s, want %s", got, PolicyUpdateChanged)
	}

	spec.ChunkLimit = 7
	spec.Policy = PolicyCreateOnly
	if got := spec.EffectiveChunkLimit(); got != 7 {
		t.Errorf("EffectiveChunkLimit() = %d, want 7", got)
	}
	if got := spec.EffectivePolicy(); got != PolicyCreateOnly {
		t.Errorf("EffectivePolicy() = %s, want %s", got, PolicyCreateOnly)
	}
}
