package job

import "encoding/json"

// Template is the reusable job specification a scheduled entry or stream
// bridge rule enqueues from: a kind, a payload, and the submission
// options to apply each time it fires.
type Template struct {
	Kind    JobKind         `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Options Options         `json:"options"`
}
