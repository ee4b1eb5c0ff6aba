package model

import (
	"encoding/json"

	"go.trai.ch/zerr"
)

// Field describes one attribute of a record for api documentation.
type Field struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Default any    `json:"default,omitempty"`
}

var TaskSchema = []Field{
	{Name: "_id", Type: "ObjectId"},
	{Name: "_user", Type: "ObjectId", Ref: "User"},
	{Name: "_flow", Type: "ObjectId", Ref: "Flow"},
	{Name: "name", Type: "String", Default: ""},
	{Name: "description", Type: "String", Default: ""},
	{Name: "complete", Type: "Boolean", Default: false},
	{Name: "status", Type: "String", Default: StatusOpen},
	{Name: "created", Type: "Date"},
	{Name: "updated", Type: "Date"},
}

var NoteSchema = []Field{
	{Name: "_id", Type: "ObjectId"},
	{Name: "_user", Type: "ObjectId", Ref: "User"},
	{Name: "_task", Type: "ObjectId", Ref: "Task"},
	{Name: "_flow", Type: "ObjectId", Ref: "Flow"},
	{Name: "name", Type: "String", Default: ""},
	{Name: "description", Type: "String", Default: ""},
	{Name: "content", Type: "String", Default: ""},
	{Name: "created", Type: "Date"},
	{Name: "updated", Type: "Date"},
}

// Encode flattens a record into a schemaless document.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to marshal record")
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, zerr.Wrap(err, "failed to unmarshal record")
	}
	return out, nil
}

// Decode reads a schemaless document back into a typed record.
func Decode[T any](doc map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, zerr.Wrap(err, "failed to marshal document")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, zerr.Wrap(err, "failed to decode document")
	}
	return out, nil
}

// Sanitize drops every key the record type T does not declare.
func Sanitize[T any](doc map[string]any) (map[string]any, error) {
	rec, err := Decode[T](doc)
	if err != nil {
		return nil, err
	}
	return Encode(rec)
}
