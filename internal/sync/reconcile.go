package sync

import (
	"fmt"

	"todosync/graph"
)

// Reconcile merges an ordered list of change records into a task collection
// snapshot. The snapshot is indexed by task ID; a tombstone removes its ID
// (a no-op when already absent), any other record is a whole-record upsert.
// Delta payloads are whole replacements, never partial patches, so upsert
// means overwrite.
//
// Reconcile is idempotent under replay: the remote delta feed does not
// guarantee exactly-once delivery, and applying the same changes twice must
// yield the same snapshot. Output order is implementation-defined; consumers
// re-sort for display.
func Reconcile(base []graph.Task, changes []graph.ChangeRecord) []graph.Task {
	byID := make(map[string]graph.Task, len(base))
	order := make([]string, 0, len(base)+len(changes))
	// Order membership is tracked separately from byID: a tombstone removes
	// the record but keeps the ID's slot in order, so a later re-insert of the
	// same ID within one batch does not append a second slot.
	inOrder := make(map[string]bool, len(base)+len(changes))
	for _, t := range base {
		if !inOrder[t.ID] {
			inOrder[t.ID] = true
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	for _, ch := range changes {
		if ch.IsTombstone() {
			delete(byID, ch.ID)
			continue
		}
		if !inOrder[ch.ID] {
			inOrder[ch.ID] = true
			order = append(order, ch.ID)
		}
		byID[ch.ID] = ch.Task
	}

	merged := make([]graph.Task, 0, len(byID))
	for _, id := range order {
		if t, ok := byID[id]; ok {
			merged = append(merged, t)
		}
	}
	return merged
}

// applyChanges runs Reconcile with a panic guard. A reconcile failure must
// never propagate a partial merge to the cache, so any panic is converted to
// an error the caller downgrades to "no changes".
func applyChanges(base []graph.Task, changes []graph.ChangeRecord) (merged []graph.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			merged = nil
			err = fmt.Errorf("delta apply failed: %v", r)
		}
	}()
	return Reconcile(base, changes), nil
}
