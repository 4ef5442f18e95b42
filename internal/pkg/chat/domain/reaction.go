package chat

import "time"

// Reaction is an emoji attached to a message by a user. The store enforces
// at most one reaction per (user, message); a later reaction from the same
// user replaces the earlier one.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment describes an already-uploaded file referenced by a message.
// Uploading itself happens outside the synchronization core.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}
