package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/hibiken/asynq"
)

// TaskTypeConvert is the asynq task type of a scan conversion
const TaskTypeConvert = "scanocr:convert"

// JobData is the payload of a conversion task
type JobData struct {
	JobID        string         `json:"jobId"`
	Filename     string         `json:"filename,omitempty"`
	FilePath     string         `json:"filePath,omitempty"`
	FileURL      string         `json:"fileUrl,omitempty"`
	FileBuffer   []byte         `json:"fileBuffer,omitempty"`
	Options      *types.Options `json:"options,omitempty"`
	OutputFormat string         `json:"outputFormat,omitempty"`
}

// UnmarshalJSON accepts fileBuffer either as a base64 string or as a Node.js
// Buffer object ({"type":"Buffer","data":[...]}).
func (j *JobData) UnmarshalJSON(data []byte) error {
	type Alias JobData
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(j),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobData: %w", err)
	}

	switch v := aux.FileBuffer.(type) {
	case nil:
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		j.FileBuffer = decoded
	case map[string]interface{}:
		if bufferType, _ := v["type"].(string); bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		values, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		j.FileBuffer = make([]byte, len(values))
		for i, val := range values {
			b, ok := val.(float64)
			if !ok || b < 0 || b > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			j.FileBuffer[i] = byte(b)
		}
	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}
	return nil
}

// Validate checks that the job names a source
func (j *JobData) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(j.FileBuffer) == 0 && j.FilePath == "" && j.FileURL == "" {
		return fmt.Errorf("job %s has no file source (fileBuffer, filePath or fileUrl)", j.JobID)
	}
	return nil
}

// NewConvertTask builds the asynq task for a job
func NewConvertTask(job *JobData, opts ...asynq.Option) (*asynq.Task, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return asynq.NewTask(TaskTypeConvert, payload, opts...), nil
}
