package enricher

import "github.com/psantana5/worker-metadata/pkg/models"

// Placement says where metadata ended up in a result
type Placement string

const (
	// PlacementOutput means metadata was added inside result["output"]
	PlacementOutput Placement = "output"
	// PlacementTopLevel means metadata is a sibling of the result's own keys
	PlacementTopLevel Placement = "top_level"
	// PlacementWrapped means a non-keyed result was wrapped under "output"
	PlacementWrapped Placement = "wrapped"
)

// Attach places metadata into result under key without disturbing the
// result's own fields. Keyed results are updated in place.
func Attach(result models.Result, key string, metadata interface{}) (models.Result, Placement) {
	m, keyed := asKeyed(result)
	if !keyed {
		return map[string]interface{}{
			"output": result,
			key:      metadata,
		}, PlacementWrapped
	}
	if m == nil {
		m = map[string]interface{}{}
	}

	if output, ok := asKeyed(m["output"]); ok && output != nil {
		output[key] = metadata
		return m, PlacementOutput
	}

	m[key] = metadata
	return m, PlacementTopLevel
}

func asKeyed(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.Job:
		return m, true
	default:
		return nil, false
	}
}
