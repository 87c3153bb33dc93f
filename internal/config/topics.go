package config

const (
	// TopicIngestTask is the NSQ topic for document ingestion tasks.
	TopicIngestTask = "ingest.task"

	// ChannelBackend is the consumer channel used by this process.
	ChannelBackend = "backend"
)
