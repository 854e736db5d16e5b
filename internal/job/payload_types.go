package job

import (
	"encoding/json"
	"fmt"

	"github.com/autoweave/jobqueue/internal/serialization"
)

// Per-kind payload shapes. Each mirrors the field set a processor for that
// JobKind actually consumes; Queue.Enqueue decodes the submitted payload
// into the matching struct to reject malformed submissions before they
// ever reach a worker.

// USBAttachPayload accompanies KindUSBAttach.
type USBAttachPayload struct {
	DeviceSignature string `json:"device_signature"`
	VendorID        string `json:"vendor_id"`
	ProductID       string `json:"product_id"`
	DevicePath      string `json:"device_path"`
	SerialNumber    string `json:"serial_number,omitempty"`
}

// USBDetachPayload accompanies KindUSBDetach.
type USBDetachPayload struct {
	DeviceSignature string `json:"device_signature"`
}

// USBScanPayload accompanies KindUSBScan.
type USBScanPayload struct {
	BusFilter string `json:"bus_filter,omitempty"`
}

// PluginLoadPayload accompanies KindPluginLoad.
type PluginLoadPayload struct {
	PluginID string `json:"plugin_id"`
	Path     string `json:"path"`
}

// PluginUnloadPayload accompanies KindPluginUnload.
type PluginUnloadPayload struct {
	PluginID string `json:"plugin_id"`
}

// PluginExecutePayload accompanies KindPluginExecute.
type PluginExecutePayload struct {
	PluginID string          `json:"plugin_id"`
	Action   string          `json:"action"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// PluginValidatePayload accompanies KindPluginValidate.
type PluginValidatePayload struct {
	PluginID string `json:"plugin_id"`
}

// PluginReloadPayload accompanies KindPluginReload.
type PluginReloadPayload struct {
	PluginID string `json:"plugin_id"`
}

// LLMBatchPayload accompanies KindLLMBatch.
type LLMBatchPayload struct {
	Model    string   `json:"model"`
	Prompts  []string `json:"prompts"`
	MaxToken int      `json:"max_tokens,omitempty"`
}

// LLMEmbeddingsPayload accompanies KindLLMEmbeddings.
type LLMEmbeddingsPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// LLMCompletionPayload accompanies KindLLMCompletion.
type LLMCompletionPayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// SystemMaintenancePayload accompanies KindSystemMaintenance.
type SystemMaintenancePayload struct {
	Task string `json:"task"`
}

// SystemCleanupPayload accompanies KindSystemCleanup.
type SystemCleanupPayload struct {
	OlderThanMs int64 `json:"older_than_ms,omitempty"`
}

// SystemHealthPayload accompanies KindSystemHealth.
type SystemHealthPayload struct {
	Component string `json:"component,omitempty"`
}

// SystemBackupPayload accompanies KindSystemBackup.
type SystemBackupPayload struct {
	Target string `json:"target"`
}

// MemoryVectorizePayload accompanies KindMemoryVectorize.
type MemoryVectorizePayload struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// MemoryIndexPayload accompanies KindMemoryIndex.
type MemoryIndexPayload struct {
	DocumentID string `json:"document_id"`
}

// MemorySearchPayload accompanies KindMemorySearch.
type MemorySearchPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// MemoryCleanupPayload accompanies KindMemoryCleanup.
type MemoryCleanupPayload struct {
	OlderThanMs int64 `json:"older_than_ms,omitempty"`
}

// kindSchemas maps each known JobKind to a zero-value instance of its
// payload type, used purely as an unmarshal target to validate shape.
var kindSchemas = map[JobKind]func() interface{}{
	KindUSBAttach: func() interface{} { return &USBAttachPayload{} },
	KindUSBDetach: func() interface{} { return &USBDetachPayload{} },
	KindUSBScan:   func() interface{} { return &USBScanPayload{} },

	KindPluginLoad:     func() interface{} { return &PluginLoadPayload{} },
	KindPluginUnload:   func() interface{} { return &PluginUnloadPayload{} },
	KindPluginExecute:  func() interface{} { return &PluginExecutePayload{} },
	KindPluginValidate: func() interface{} { return &PluginValidatePayload{} },
	KindPluginReload:   func() interface{} { return &PluginReloadPayload{} },

	KindLLMBatch:      func() interface{} { return &LLMBatchPayload{} },
	KindLLMEmbeddings: func() interface{} { return &LLMEmbeddingsPayload{} },
	KindLLMCompletion: func() interface{} { return &LLMCompletionPayload{} },

	KindSystemMaintenance: func() interface{} { return &SystemMaintenancePayload{} },
	KindSystemCleanup:     func() interface{} { return &SystemCleanupPayload{} },
	KindSystemHealth:      func() interface{} { return &SystemHealthPayload{} },
	KindSystemBackup:      func() interface{} { return &SystemBackupPayload{} },

	KindMemoryVectorize: func() interface{} { return &MemoryVectorizePayload{} },
	KindMemoryIndex:     func() interface{} { return &MemoryIndexPayload{} },
	KindMemorySearch:    func() interface{} { return &MemorySearchPayload{} },
	KindMemoryCleanup:   func() interface{} { return &MemoryCleanupPayload{} },
}

// ValidatePayload decodes raw against the schema registered for kind. It
// fails closed: an unknown kind or malformed payload is rejected here,
// before a Job is ever constructed. raw may be plain JSON or a
// format-prefixed payload (see decodeTransportPayload); either is
// accepted transparently.
func ValidatePayload(kind JobKind, raw json.RawMessage) error {
	factory, ok := kindSchemas[kind]
	if !ok {
		return fmt.Errorf("unknown job kind: %s", kind)
	}
	if len(raw) == 0 {
		return fmt.Errorf("payload is required for kind %s", kind)
	}
	jsonPayload, err := decodeTransportPayload(raw)
	if err != nil {
		return fmt.Errorf("payload does not match schema for kind %s: %w", kind, err)
	}
	target := factory()
	if err := json.Unmarshal(jsonPayload, target); err != nil {
		return fmt.Errorf("payload does not match schema for kind %s: %w", kind, err)
	}
	return nil
}

// DecodePayload unmarshals a job's raw payload into dest, a pointer to the
// concrete payload type expected for the job's kind (e.g. *USBAttachPayload).
func DecodePayload(raw json.RawMessage, dest interface{}) error {
	jsonPayload, err := decodeTransportPayload(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonPayload, dest)
}

// transportSerializer only ever runs DetectFormat/protobuf-struct
// decoding, so its DefaultFormat (used solely by Marshal) is irrelevant.
var transportSerializer = serialization.NewJSONSerializer()

// decodeTransportPayload strips a payload's format tag, if any, and
// returns plain JSON bytes. Legacy payloads with no tag (the common case:
// raw JSON starting with '{' or '[') pass through unchanged, so producers
// that never adopted the protobuf transport are unaffected.
func decodeTransportPayload(raw json.RawMessage) (json.RawMessage, error) {
	format, payload, err := transportSerializer.DetectFormat(raw)
	if err != nil {
		return nil, err
	}
	if format == serialization.FormatProtobuf {
		return serialization.UnmarshalPayloadProto(payload)
	}
	return payload, nil
}
