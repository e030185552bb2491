package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid message")

const (
	projectPattern   = `^[A-Z0-9]{3}$`
	dataValuePattern = `^[a-zA-Z0-9 ;]+$`
	lowSideDate      = `^[0-9]{8}T[0-9]{2}:[0-9]{2}:[0-9]{2}$`

	maxDataEntries = 20
	lowSideLayout  = "02012006T15:04:05"
)

// isoLayouts are the ISO 8601 shapes accepted by the strict schema
var isoLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

/* Validator turns a raw payload into a Message or a rejection
 * Implementations are pure: no I/O, no shared state
 */
type Validator interface {
	Validate(raw []byte) (Message, error)
	Variant() Variant
}

// NewValidator returns the schema for the given variant
func NewValidator(v Variant) (Validator, error) {
	switch v {
	case Strict:
		return NewStrictSchema(), nil
	case Permissive:
		return NewPermissiveSchema(), nil
	default:
		return nil, fmt.Errorf("validating variant: %w", v.Validate())
	}
}

// StrictSchema is the corporate schema: bounded TestID, ISO timestamp, string-only Data
type StrictSchema struct {
	doc *openapi3.Schema
}

// NewStrictSchema builds the strict schema document
func NewStrictSchema() *StrictSchema {
	value := openapi3.NewStringSchema().
		WithMinLength(1).
		WithMaxLength(128).
		WithPattern(dataValuePattern)
	data := openapi3.NewObjectSchema().
		WithMaxProperties(maxDataEntries).
		WithAdditionalProperties(value)

	doc := openapi3.NewObjectSchema().
		WithProperty("ID", openapi3.NewStringSchema()).
		WithProperty("Project", openapi3.NewStringSchema().WithPattern(projectPattern)).
		WithProperty("Test ID", openapi3.NewStringSchema().WithMinLength(3).WithMaxLength(10)).
		WithProperty("Timestamp", openapi3.NewStringSchema()).
		WithProperty("Test Status", openapi3.NewStringSchema()).
		WithProperty("Data", data)
	doc.Required = []string{"ID", "Project", "Test ID", "Timestamp", "Test Status", "Data"}
	closed(doc)

	return &StrictSchema{doc: doc}
}

// Variant returns Strict
func (s *StrictSchema) Variant() Variant {
	return Strict
}

// Validate checks raw against the strict schema
func (s *StrictSchema) Validate(raw []byte) (Message, error) {
	fields, data, err := decode(s.doc, raw)
	if err != nil {
		return Message{}, err
	}
	if err := checkID(fields["ID"]); err != nil {
		return Message{}, err
	}
	if err := checkISOTimestamp(fields["Timestamp"]); err != nil {
		return Message{}, err
	}

	return Message{
		Variant:   Strict,
		ID:        fields["ID"],
		Project:   fields["Project"],
		TestID:    fields["Test ID"],
		Timestamp: fields["Timestamp"],
		Status:    fields["Test Status"],
		Data:      data,
	}, nil
}

// PermissiveSchema is the low-side schema: fixed ddMMyyyyThh:mm:ss date, free-form Data
type PermissiveSchema struct {
	doc *openapi3.Schema
}

// NewPermissiveSchema builds the permissive schema document
func NewPermissiveSchema() *PermissiveSchema {
	doc := openapi3.NewObjectSchema().
		WithProperty("ID", openapi3.NewStringSchema()).
		WithProperty("Project", openapi3.NewStringSchema().WithPattern(projectPattern)).
		WithProperty("TestID", openapi3.NewStringSchema()).
		WithProperty("Area", openapi3.NewStringSchema()).
		WithProperty("Status", openapi3.NewStringSchema()).
		WithProperty("Date", openapi3.NewStringSchema().WithPattern(lowSideDate)).
		WithProperty("Data", openapi3.NewObjectSchema().WithAnyAdditionalProperties())
	doc.Required = []string{"ID", "Project", "TestID", "Area", "Status", "Date", "Data"}
	closed(doc)

	return &PermissiveSchema{doc: doc}
}

// Variant returns Permissive
func (s *PermissiveSchema) Variant() Variant {
	return Permissive
}

// Validate checks raw against the permissive schema
func (s *PermissiveSchema) Validate(raw []byte) (Message, error) {
	fields, data, err := decode(s.doc, raw)
	if err != nil {
		return Message{}, err
	}
	if err := checkID(fields["ID"]); err != nil {
		return Message{}, err
	}
	if _, err := time.Parse(lowSideLayout, fields["Date"]); err != nil {
		return Message{}, fmt.Errorf("%w: Date is not a valid ddMMyyyyThh:mm:ss value", ErrInvalid)
	}

	return Message{
		Variant:   Permissive,
		ID:        fields["ID"],
		Project:   fields["Project"],
		TestID:    fields["TestID"],
		Area:      fields["Area"],
		Timestamp: fields["Date"],
		Status:    fields["Status"],
		Data:      data,
	}, nil
}

// closed forbids top-level keys the schema does not declare
func closed(doc *openapi3.Schema) {
	no := false
	doc.AdditionalProperties = openapi3.AdditionalProperties{Has: &no}
}

// decode runs the structural checks and returns the string fields and a compacted copy of Data
func decode(doc *openapi3.Schema, raw []byte) (map[string]string, json.RawMessage, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding payload: %v", ErrInvalid, err)
	}
	if err := doc.VisitJSON(value); err != nil {
		return nil, nil, schemaFailure(err)
	}

	// the schema guarantees an object whose declared scalar fields are strings
	obj := value.(map[string]any)
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding payload: %v", ErrInvalid, err)
	}
	var data bytes.Buffer
	if err := json.Compact(&data, parts["Data"]); err != nil {
		return nil, nil, fmt.Errorf("%w: compacting Data: %v", ErrInvalid, err)
	}

	return fields, json.RawMessage(data.Bytes()), nil
}

// schemaFailure names the offending field, e.g. Data["name"], for server-side logs
func schemaFailure(err error) error {
	var se *openapi3.SchemaError
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	path := se.JSONPointer()
	if len(path) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, se.Reason)
	}
	field := path[0]
	for _, p := range path[1:] {
		field += fmt.Sprintf("[%q]", p)
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, se.Reason)
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: ID is not a valid UUID", ErrInvalid)
	}
	return nil
}

func checkISOTimestamp(ts string) error {
	if strings.TrimSpace(ts) == ts {
		for _, layout := range isoLayouts {
			if _, err := time.Parse(layout, ts); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: Timestamp must be an ISO 8601 datetime (e.g. 2026-01-30T11:22:33)", ErrInvalid)
}
