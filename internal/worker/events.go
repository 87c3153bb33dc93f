package worker

// IngestTaskPayload is the message published on ingest.task when a document
// is uploaded or resynced.
type IngestTaskPayload struct {
	DocumentID    string `json:"document_id"`
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
