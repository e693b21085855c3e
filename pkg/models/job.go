package models

import "fmt"

// Job is the request handed to a worker. Only "id" and "input" are conventional;
// no other shape is assumed.
type Job map[string]interface{}

// Result is whatever the downstream handler returned
type Result = interface{}

// ID returns the job id, or "unknown" when the job has none
func (j Job) ID() string {
	if j == nil {
		return "unknown"
	}
	switch id := j["id"].(type) {
	case string:
		if id != "" {
			return id
		}
	case nil:
	default:
		return fmt.Sprint(id)
	}
	return "unknown"
}

// Input returns the job's "input" sub-structure if it is a keyed structure
func (j Job) Input() (map[string]interface{}, bool) {
	in, ok := j["input"].(map[string]interface{})
	return in, ok
}

// ErrorResult builds the error-shaped result used when a handler fails
func ErrorResult(message string) map[string]interface{} {
	return map[string]interface{}{
		"error": message,
	}
}
