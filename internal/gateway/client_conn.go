package gateway

// ClientConn represents a WebSocket connection wrapper. WriteMessage only
// queues; frames are written in order by a single writer. Close flushes the
// queue before the socket is torn down.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
