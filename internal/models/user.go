package models

import "time"

// User is a registered account. Language stays nil until profile setup
// completes; until then the user is not a translation target.
type User struct {
	ID              string    `db:"id" json:"user_id"`
	Username        string    `db:"username" json:"username"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Language        *string   `db:"language" json:"language"`
	ProfileImageURL string    `db:"profile_image_url" json:"profile_image_url"`
	AccountType     string    `db:"account_type" json:"account_type"`
	Translator      string    `db:"translator" json:"translator"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	LastLoginAt     time.Time `db:"last_login_at" json:"last_login_at"`
}

// HasLanguage reports whether the user completed language selection.
func (u User) HasLanguage() bool {
	return u.Language != nil && *u.Language != ""
}

// Contact is the sidebar view of another user: profile data plus the
// live state derived from the shared conversation.
type Contact struct {
	User
	Online      bool     `json:"online"`
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}
