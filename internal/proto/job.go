package proto

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request field names.
const (
	FieldManifestURL = "manifest_url"
	FieldTaskKey     = "task_key"
)

// NewSubmitRequest builds a Submit request for manifestURL.
func NewSubmitRequest(manifestURL string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldManifestURL: structpb.NewStringValue(manifestURL),
	}}
}

// NewGetStatusRequest builds a GetStatus request for taskKey.
func NewGetStatusRequest(taskKey string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldTaskKey: structpb.NewStringValue(taskKey),
	}}
}

// StringField returns the string value of field name, or "".
func StringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// JobToStruct encodes a job record using its JSON field names.
func JobToStruct(job *models.Job) (*structpb.Struct, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return s, nil
}

// JobFromStruct decodes a job record produced by JobToStruct.
func JobFromStruct(s *structpb.Struct) (*models.Job, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}

	job := &models.Job{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
