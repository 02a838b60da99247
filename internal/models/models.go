package models

import "time"

// AuthState is an anti-forgery token binding an OAuth redirect round-trip to
// the Telegram user who initiated it. A state is consumed at most once; any
// second consumption attempt fails.
type AuthState struct {
	State     string    `bson:"_id" json:"state"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	Used      bool      `bson:"used" json:"used"`
}

// OAuthToken is a GitHub access token held on behalf of a Telegram user.
// At most one active token exists per user; logout deactivates, never deletes.
type OAuthToken struct {
	UserID         int64     `bson:"_id" json:"user_id"`
	EncryptedToken string    `bson:"encrypted_token" json:"-"`
	TokenType      string    `bson:"token_type" json:"token_type"`
	Scope          string    `bson:"scope" json:"scope"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	Active         bool      `bson:"active" json:"active"`
}

// Subscription is a chat's declared interest in a repository's events.
// The natural key is (ChatID, RepositoryURL); re-subscribing updates in place.
type Subscription struct {
	ChatID        int64     `bson:"chat_id" json:"chat_id"`
	RepositoryURL string    `bson:"repository_url" json:"repository_url"`
	Events        []string  `bson:"events" json:"events"`
	Active        bool      `bson:"active" json:"active"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// HasEvent reports whether the subscription covers the given event type.
func (s *Subscription) HasEvent(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// DeliveryLogEntry records one attempt to notify one chat about one event.
// Entries are append-only.
type DeliveryLogEntry struct {
	ChatID        int64     `bson:"chat_id" json:"chat_id"`
	RepositoryURL string    `bson:"repository_url" json:"repository_url"`
	EventType     string    `bson:"event_type" json:"event_type"`
	Message       string    `bson:"message" json:"message"`
	Success       bool      `bson:"success" json:"success"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

// Chat represents a Telegram chat (group, channel, or private)
type Chat struct {
	ID       int64  `bson:"_id" json:"chat_id"`
	ChatType string `bson:"chat_type" json:"chat_type"`
	Title    string `bson:"title" json:"title"`
}
