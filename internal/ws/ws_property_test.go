package ws

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/derenko/q-chat/internal/presence"
)

func TestEnvelopeRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("message frames preserve text", prop.ForAll(
		func(chatID, text string) bool {
			payload := SendMessagePayload{ChatID: chatID, Text: text}
			data, err := json.Marshal(payload)
			if err != nil {
				return false
			}

			raw, err := json.Marshal(Envelope{Event: EventClientSendMessage, Data: data})
			if err != nil {
				return false
			}

			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return false
			}
			var parsed SendMessagePayload
			if err := json.Unmarshal(env.Data, &parsed); err != nil {
				return false
			}

			return env.Event == EventClientSendMessage && parsed.ChatID == chatID && parsed.Text == text
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("error acks preserve code and message", prop.ForAll(
		func(code, message string) bool {
			raw, err := marshalEvent(EventError, ErrorPayload{Code: code, Message: message})
			if err != nil {
				return false
			}

			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return false
			}
			var parsed ErrorPayload
			if err := json.Unmarshal(env.Data, &parsed); err != nil {
				return false
			}

			return env.Event == EventError && parsed.Code == code && parsed.Message == message
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestBroadcastDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Room fan-out delivers exactly once to every member and never to a
	// registered connection outside the room.
	properties.Property("room emit reaches members and only members", prop.ForAll(
		func(numMembers, numOutsiders int, text string) bool {
			registry := NewRegistry(presence.NewTracker(), nil)
			defer registry.Close()

			members := make([]*Conn, numMembers)
			for i := range members {
				members[i] = newTestConn(ClientIdentity(fmt.Sprintf("member-%d", i)))
				registry.Register(members[i])
				registry.Join(members[i], "chat-1")
			}

			outsiders := make([]*Conn, numOutsiders)
			for i := range outsiders {
				outsiders[i] = newTestConn(ClientIdentity(fmt.Sprintf("outsider-%d", i)))
				registry.Register(outsiders[i])
			}

			registry.EmitToRoom("chat-1", EventChatMessage, map[string]string{"text": text})

			for _, c := range members {
				select {
				case data := <-c.SendChan():
					var env Envelope
					if err := json.Unmarshal(data, &env); err != nil || env.Event != EventChatMessage {
						return false
					}
				case <-time.After(100 * time.Millisecond):
					return false
				}
				// Exactly once.
				select {
				case <-c.SendChan():
					return false
				default:
				}
			}

			for _, c := range outsiders {
				select {
				case <-c.SendChan():
					return false
				default:
				}
			}

			return true
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 10),
		gen.AnyString(),
	))

	// Capability fan-out is governed purely by the predicate over resolved
	// identities, whatever mix of roles is registered.
	properties.Property("filtered emit matches the predicate exactly", prop.ForAll(
		func(numAgents, numClients, numAnon int) bool {
			registry := NewRegistry(presence.NewTracker(), nil)
			defer registry.Close()

			var agents, others []*Conn
			for i := 0; i < numAgents; i++ {
				c := newTestConn(AgentIdentity(int64(i + 1)))
				registry.Register(c)
				agents = append(agents, c)
			}
			for i := 0; i < numClients; i++ {
				c := newTestConn(ClientIdentity(fmt.Sprintf("client-%d", i)))
				registry.Register(c)
				others = append(others, c)
			}
			for i := 0; i < numAnon; i++ {
				c := newTestConn(Anonymous)
				registry.Register(c)
				others = append(others, c)
			}

			registry.EmitToFiltered(EventChatOpen, nil, IsAgentConn)

			for _, c := range agents {
				select {
				case data := <-c.SendChan():
					var env Envelope
					if err := json.Unmarshal(data, &env); err != nil || env.Event != EventChatOpen {
						return false
					}
				case <-time.After(100 * time.Millisecond):
					return false
				}
			}
			for _, c := range others {
				select {
				case <-c.SendChan():
					return false
				default:
				}
			}

			return true
		},
		gen.IntRange(0, 8),
		gen.IntRange(0, 8),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestPresenceCountingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Online status holds exactly while the declared flag is set and the
	// connect count exceeds the disconnect count.
	properties.Property("connect and disconnect balance decides reachability", prop.ForAll(
		func(connects int, declared bool) bool {
			tracker := presence.NewTracker()
			registry := NewRegistry(tracker, nil)
			defer registry.Close()

			tracker.SetDeclaredOnline(42, declared)

			conns := make([]*Conn, connects)
			for i := range conns {
				conns[i] = newTestConn(AgentIdentity(42))
				registry.Register(conns[i])
			}

			if tracker.Online(42) != (declared && connects > 0) {
				return false
			}

			for i, c := range conns {
				registry.Unregister(c)
				remaining := connects - i - 1
				if tracker.Online(42) != (declared && remaining > 0) {
					return false
				}
			}

			return !tracker.Online(42)
		},
		gen.IntRange(0, 6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
