// Package model defines the data structures shared by the repositories,
// services and handlers.
package model

import "time"

// Snippet is the mutable document under version control. Its current state
// lives here; every historical state lives in a Version.
type Snippet struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	Code        string    `json:"code"        db:"code"`
	Language    string    `json:"language"    db:"language"`
	UserID      string    `json:"userId"      db:"user_id"` // creator; empty for anonymous snippets
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
