package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	FieldDeviceID = "device_id"
	FieldStatus   = "status"
)

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Encode turns any JSON-marshalable value into a Struct by way of its JSON
// form, so times and typed strings come out the way REST renders them.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload must encode as an object: %w", err)
	}
	return structpb.NewStruct(fields)
}

// Decode is the inverse of Encode.
func Decode(s *structpb.Struct, dst any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func respond(ok bool, message string, data map[string]any) (*structpb.Struct, error) {
	body := map[string]any{FieldStatus: StatusResponse{Success: ok, Message: message}}
	for k, v := range data {
		body[k] = v
	}
	return Encode(body)
}

func fail(message string) (*structpb.Struct, error) {
	return respond(false, message, nil)
}

func failf(format string, args ...any) (*structpb.Struct, error) {
	return fail(fmt.Sprintf(format, args...))
}

func deviceIDOf(req any) string {
	s, ok := req.(*structpb.Struct)
	if !ok || s == nil {
		return ""
	}
	if v, ok := s.GetFields()[FieldDeviceID]; ok {
		return v.GetStringValue()
	}
	return ""
}
