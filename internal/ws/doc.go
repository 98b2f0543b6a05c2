// Package ws implements the realtime chat gateway over WebSocket.
//
// The package implements:
//   - Conn: one live connection with its resolved identity
//   - Registry: connection set, room membership and event fan-out
//   - Dispatcher: validation, authorization and routing of inbound commands
//   - Gateway: the explicitly constructed composition of registry, presence
//     tracker, chat directory and dispatcher
//
// Inbound commands mutate chats through the chat manager, are persisted
// synchronously, and only after persistence success are outbound events
// fanned out to the room or to identity-filtered connection sets. Fan-out is
// best-effort: a slow or disconnected member never fails a committed
// transition.
package ws
