package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveReservationIDs(t *testing.T) {
	tests := []struct {
		name     string
		explicit []string
		metadata map[string]any
		fallback string
		want     []string
	}{
		{
			name:     "explicit ids win",
			explicit: []string{"a", "b"},
			metadata: map[string]any{"reservation_ids": []any{"c"}},
			want:     []string{"a", "b"},
		},
		{
			name:     "explicit ids are trimmed and de-duplicated",
			explicit: []string{" a ", "", "b", "a"},
			want:     []string{"a", "b"},
		},
		{
			name:     "metadata list",
			metadata: map[string]any{"reservation_ids": []any{"a", "b"}},
			want:     []string{"a", "b"},
		},
		{
			name:     "metadata comma string",
			metadata: map[string]any{"reservation_ids": "a, b,,a"},
			want:     []string{"a", "b"},
		},
		{
			name:     "single reservation id",
			metadata: map[string]any{"reservation_id": "a"},
			want:     []string{"a"},
		},
		{
			name:     "custom fields comma string",
			metadata: map[string]any{"custom_fields": "a,b"},
			want:     []string{"a", "b"},
		},
		{
			name: "custom fields objects",
			metadata: map[string]any{"custom_fields": []any{
				map[string]any{"variable_name": "phone", "value": "0240000000"},
				map[string]any{"variable_name": "reservation_ids", "value": "a,b"},
			}},
			want: []string{"a", "b"},
		},
		{
			name:     "custom fields map",
			metadata: map[string]any{"custom_fields": map[string]any{"reservation_ids": []any{"a"}}},
			want:     []string{"a"},
		},
		{
			name:     "empty metadata falls back",
			metadata: map[string]any{"reservation_ids": ""},
			fallback: "ref",
			want:     []string{"ref"},
		},
		{
			name: "nothing resolves",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveReservationIDs(tt.explicit, tt.metadata, tt.fallback))
		})
	}
}
