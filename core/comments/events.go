package comments

import "versionvibe/model"

// ChangeKind names a realtime change to the comments entity.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one realtime notification. Delivery is at-least-once and
// unordered relative to direct responses, so every application path
// must stay idempotent. Payloads are partial for deletes (id and
// version only) and may lack author enrichment for inserts.
type Change struct {
	Kind    ChangeKind
	Comment *model.Comment
}
