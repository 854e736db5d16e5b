package serialization

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PayloadToStruct converts a raw JSON object payload into a
// structpb.Struct, so it can
// travel through the protobuf-format path of Serializer without a
// hand-generated message type.
func PayloadToStruct(raw json.RawMessage) (*structpb.Struct, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("converting payload to struct: %w", err)
	}
	return s, nil
}

// StructToPayload converts a structpb.Struct back into raw JSON bytes.
func StructToPayload(s *structpb.Struct) (json.RawMessage, error) {
	return json.Marshal(s.AsMap())
}

// MarshalPayloadProto serializes a payload as a format-prefixed protobuf
// structpb.Struct, the wire shape pkg/client's SubmitJobProto enqueues.
func MarshalPayloadProto(raw json.RawMessage) ([]byte, error) {
	s, err := PayloadToStruct(raw)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w (Protobuf struct): %v", ErrMarshalFailed, err)
	}
	result := make([]byte, len(data)+1)
	result[0] = byte(FormatProtobuf)
	copy(result[1:], data)
	return result, nil
}

// UnmarshalPayloadProto reverses MarshalPayloadProto, expecting the
// leading format byte to already have been stripped by the caller (e.g.
// via Serializer.DetectFormat).
func UnmarshalPayloadProto(data []byte) (json.RawMessage, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w (Protobuf struct): %v", ErrUnmarshalFailed, err)
	}
	return StructToPayload(s)
}
