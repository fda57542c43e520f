package recovery

import "github.com/tidwall/gjson"

// Subtask count bounds requested from the model.
const (
	MinSubtasks = 3
	MaxSubtasks = 7
)

// BreakdownSchema requires a "subtasks" array. With enforceRange the array must
// also hold MinSubtasks..MaxSubtasks objects with string title and description.
func BreakdownSchema(enforceRange bool) Schema {
	return func(doc gjson.Result) bool {
		subtasks := doc.Get("subtasks")
		if !subtasks.IsArray() {
			return false
		}
		if !enforceRange {
			return true
		}
		items := subtasks.Array()
		if len(items) < MinSubtasks || len(items) > MaxSubtasks {
			return false
		}
		for _, item := range items {
			if !item.IsObject() {
				return false
			}
			if item.Get("title").Type != gjson.String || item.Get("description").Type != gjson.String {
				return false
			}
		}
		return true
	}
}

// DiagnosisSchema accepts {cause, solutions} or the degraded {summary} shape.
func DiagnosisSchema(doc gjson.Result) bool {
	if doc.Get("cause").Type == gjson.String && doc.Get("solutions").IsArray() {
		return true
	}
	return doc.Get("summary").Type == gjson.String
}
