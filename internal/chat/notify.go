package chat

// Notifier receives user-visible, non-blocking notices — the toast
// equivalent. Engine components call it for recoverable failures that
// happen outside a request/response exchange, like a live query dying
// mid-stream. The API layer's implementation pushes the notice to the
// user's WebSocket connections.
type Notifier interface {
	Notify(message string)
}
