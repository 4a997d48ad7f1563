package domain

// StreamStatus is the lifecycle state of one in-flight answer request.
type StreamStatus string

const (
	StreamPending   StreamStatus = "pending"
	StreamStreaming StreamStatus = "streaming"
	StreamCompleted StreamStatus = "completed"
	StreamFailed    StreamStatus = "failed"
)

// StreamRequest is the payload submitted to start a streaming answer.
type StreamRequest struct {
	Question       string
	ConversationID string
	Temperature    float64
}
