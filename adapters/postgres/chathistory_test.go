package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/Abraxas-365/pathway/chathistory"
)

func TestMessageWhere(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name       string
		filter     chathistory.Filter
		wantClause string
		wantParams int
	}{
		{
			name:       "conversation only",
			wantClause: "conversation_id = $1",
			wantParams: 1,
		},
		{
			name:       "time range",
			filter:     chathistory.Filter{StartTime: &start, EndTime: &end},
			wantClause: "conversation_id = $1 AND created_at >= $2 AND created_at <= $3",
			wantParams: 3,
		},
		{
			name:       "roles and search",
			filter:     chathistory.Filter{Roles: []string{"user"}, Search: "chan"},
			wantClause: "conversation_id = $1 AND role = ANY($2) AND content ILIKE $3",
			wantParams: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := messageWhere("c1", tt.filter)
			if got := w.clause(); got != tt.wantClause {
				t.Errorf("clause = %q, want %q", got, tt.wantClause)
			}
			if len(w.params) != tt.wantParams {
				t.Fatalf("params = %v, want %d", w.params, tt.wantParams)
			}
			if w.params[0] != "c1" {
				t.Errorf("first param = %v", w.params[0])
			}
		})
	}
}

func TestMessageWhere_ParamValues(t *testing.T) {
	w := messageWhere("c1", chathistory.Filter{Roles: []string{"user", "assistant"}, Search: "go"})
	if !reflect.DeepEqual(w.params[1], pq.Array([]string{"user", "assistant"})) {
		t.Errorf("roles param = %#v", w.params[1])
	}
	if w.params[2] != "%go%" {
		t.Errorf("search param = %v", w.params[2])
	}
	if got := w.add(10); got != "$4" {
		t.Errorf("next placeholder = %s, want $4", got)
	}
}
