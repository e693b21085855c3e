package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psantana5/worker-metadata/pkg/models"
)

func TestAttach(t *testing.T) {
	meta := map[string]interface{}{"hardware": map[string]interface{}{}}

	tests := []struct {
		name      string
		result    models.Result
		expected  models.Result
		placement Placement
	}{
		{
			name:      "output map",
			result:    map[string]interface{}{"output": map[string]interface{}{"foo": 1}},
			expected:  map[string]interface{}{"output": map[string]interface{}{"foo": 1, "k": meta}},
			placement: PlacementOutput,
		},
		{
			name:      "output is a list",
			result:    map[string]interface{}{"output": []interface{}{"a"}},
			expected:  map[string]interface{}{"output": []interface{}{"a"}, "k": meta},
			placement: PlacementTopLevel,
		},
		{
			name:      "output is nil",
			result:    map[string]interface{}{"output": nil, "error": "x"},
			expected:  map[string]interface{}{"output": nil, "error": "x", "k": meta},
			placement: PlacementTopLevel,
		},
		{
			name:      "no output key",
			result:    map[string]interface{}{"status": "ok"},
			expected:  map[string]interface{}{"status": "ok", "k": meta},
			placement: PlacementTopLevel,
		},
		{
			name:      "empty map",
			result:    map[string]interface{}{},
			expected:  map[string]interface{}{"k": meta},
			placement: PlacementTopLevel,
		},
		{
			name:      "nil map",
			result:    map[string]interface{}(nil),
			expected:  map[string]interface{}{"k": meta},
			placement: PlacementTopLevel,
		},
		{
			name:      "job typed map",
			result:    models.Job{"output": map[string]interface{}{}},
			expected:  map[string]interface{}{"output": map[string]interface{}{"k": meta}},
			placement: PlacementOutput,
		},
		{
			name:      "string",
			result:    "done",
			expected:  map[string]interface{}{"output": "done", "k": meta},
			placement: PlacementWrapped,
		},
		{
			name:      "nil",
			result:    nil,
			expected:  map[string]interface{}{"output": nil, "k": meta},
			placement: PlacementWrapped,
		},
		{
			name:      "list",
			result:    []interface{}{1, 2},
			expected:  map[string]interface{}{"output": []interface{}{1, 2}, "k": meta},
			placement: PlacementWrapped,
		},
		{
			name:      "non-string keyed map",
			result:    map[int]string{1: "a"},
			expected:  map[string]interface{}{"output": map[int]string{1: "a"}, "k": meta},
			placement: PlacementWrapped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, placement := Attach(tt.result, "k", meta)
			assert.Equal(t, tt.placement, placement)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAttachUpdatesInPlace(t *testing.T) {
	output := map[string]interface{}{"foo": 1}
	result := map[string]interface{}{"output": output}

	Attach(result, "worker_metadata", "meta")

	assert.Equal(t, "meta", output["worker_metadata"])
}
