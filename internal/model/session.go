package model

import "time"

// Role distinguishes the two sides of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single append-only turn in a thread's history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the per-thread_id conversational state. It is created on
// first use, mutated only by the pipeline runtime under the thread's lock,
// and retained by the checkpoint backend between invocations.
type SessionState struct {
	ThreadID        string          `json:"threadId"`
	History         []Message       `json:"history"`
	RetryCount      int             `json:"retryCount"`
	QueryLanguage   Language        `json:"queryLanguage"`
	ContextMetadata ContextMetadata `json:"contextMetadata"`
	Revision        int64           `json:"revision"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NewSessionState creates a fresh, zero-revision session for threadID.
func NewSessionState(threadID string) *SessionState {
	return &SessionState{
		ThreadID:      threadID,
		History:       nil,
		RetryCount:    0,
		QueryLanguage: LangUnknown,
		Revision:      0,
	}
}

// AppendMessage appends a message and bumps the revision. Callers must hold
// the session's per-thread lock.
func (s *SessionState) AppendMessage(role Role, text string, at time.Time) {
	s.History = append(s.History, Message{Role: role, Text: text, Timestamp: at})
	s.UpdatedAt = at
	s.Revision++
}

// ResetRetries zeroes the retry counter for a new top-level invocation.
// Does not bump the revision by itself — the caller bumps it together with
// whatever mutation accompanies the reset.
func (s *SessionState) ResetRetries() {
	s.RetryCount = 0
}

// Envelope is the versioned persistence wrapper the checkpoint backend
// stores: a schema version alongside the session payload, so that a future
// schema change can be detected and migrated explicitly rather than
// silently misread.
type Envelope struct {
	SchemaVersion int           `json:"schemaVersion"`
	ThreadID      string        `json:"threadId"`
	Revision      int64         `json:"revision"`
	State         *SessionState `json:"state"`
}

const CurrentSchemaVersion = 1
