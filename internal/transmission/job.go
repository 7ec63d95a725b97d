package transmission

import (
	"encoding/json"
	"fmt"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
)

// Job is one transmission request on the queue. DocumentID doubles as the
// idempotency key: one document, at most one in-flight submission.
type Job struct {
	JobID      id.JobID      `json:"job_id"`
	DocumentID id.DocumentID `json:"document_id"`
	BusinessID id.BusinessID `json:"business_id"`
	Language   string        `json:"language"`
}

func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(struct {
		JobID      string `json:"job_id"`
		DocumentID string `json:"document_id"`
		BusinessID string `json:"business_id"`
		Language   string `json:"language"`
	}{
		JobID:      j.JobID.String(),
		DocumentID: j.DocumentID.String(),
		BusinessID: j.BusinessID.String(),
		Language:   j.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return data, nil
}

// DecodeJob parses a queue record back into a Job.
func DecodeJob(data []byte) (Job, error) {
	var raw struct {
		JobID      string `json:"job_id"`
		DocumentID string `json:"document_id"`
		BusinessID string `json:"business_id"`
		Language   string `json:"language"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	jobID, err := id.ParseJobID(raw.JobID)
	if err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	docID, err := id.ParseDocumentID(raw.DocumentID)
	if err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	businessID, err := id.ParseBusinessID(raw.BusinessID)
	if err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return Job{JobID: jobID, DocumentID: docID, BusinessID: businessID, Language: raw.Language}, nil
}
