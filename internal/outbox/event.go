package outbox

// Event is an integration event staged in the same transaction as the state
// change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
