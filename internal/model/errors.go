package model

import "errors"

var (
	// ErrChatNotFound is returned when a chat id does not resolve to a chat.
	ErrChatNotFound = errors.New("chat not found")

	// ErrClientNotFound is returned when a client id does not resolve to a client.
	ErrClientNotFound = errors.New("client not found")

	// ErrAgentNotFound is returned when an agent id does not resolve to an agent.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUserNotFound is returned when a user id or email does not resolve to a user.
	ErrUserNotFound = errors.New("user not found")

	// ErrProjectNotFound is returned when a project id does not resolve to a project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrTemplateNotFound is returned when a template id does not resolve to a template.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrHandbookNotFound is returned when a handbook id does not resolve to a handbook.
	ErrHandbookNotFound = errors.New("handbook not found")

	// ErrInvalidTransition is returned when a chat status change violates the
	// OPEN -> ACTIVE -> CLOSED lifecycle.
	ErrInvalidTransition = errors.New("invalid chat status transition")

	// ErrAlreadyAssigned is returned when an agent tries to take a chat that
	// another agent already took.
	ErrAlreadyAssigned = errors.New("chat already assigned to an agent")

	// ErrChatClosed is returned when a message is appended to a CLOSED chat.
	ErrChatClosed = errors.New("chat is closed")

	// ErrValidation is returned for malformed or unauthorized commands.
	ErrValidation = errors.New("validation error")

	// ErrEmailExists is returned on sign-up with an email that is already registered.
	ErrEmailExists = errors.New("email already exists")

	// ErrInvalidCredentials is returned on sign-in with a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a bearer token cannot be decoded or is expired.
	ErrInvalidToken = errors.New("invalid token")
)
