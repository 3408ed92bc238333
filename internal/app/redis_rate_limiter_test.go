package app

import (
	"testing"
	"time"
)

func TestDecisionFromScriptResult(t *testing.T) {
	tests := []struct {
		name           string
		raw            interface{}
		wantCount      int
		wantRetryAfter time.Duration
		wantErr        bool
	}{
		{
			name:           "count and ttl pass through",
			raw:            []interface{}{int64(7), int64(42500)},
			wantCount:      7,
			wantRetryAfter: 42500 * time.Millisecond,
		},
		{
			name:           "negative ttl falls back to the window",
			raw:            []interface{}{int64(1), int64(-2)},
			wantCount:      1,
			wantRetryAfter: 60 * time.Second,
		},
		{
			name:    "wrong shape",
			raw:     "OK",
			wantErr: true,
		},
		{
			name:    "wrong element type",
			raw:     []interface{}{"7", int64(1000)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := decisionFromScriptResult(tt.raw, 60000)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if decision.Count != tt.wantCount {
				t.Fatalf("expected count %d, got %d", tt.wantCount, decision.Count)
			}
			if decision.RetryAfter != tt.wantRetryAfter {
				t.Fatalf("expected retry-after %s, got %s", tt.wantRetryAfter, decision.RetryAfter)
			}
		})
	}
}
