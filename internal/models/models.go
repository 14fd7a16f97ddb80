package models

import "time"

// User represents an account within the VidTube platform. PasswordHash and
// RefreshToken are persistence-only fields and are never serialized.
type User struct {
	ID            string    `json:"id"`
	Fullname      string    `json:"fullname"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	RefreshToken  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Sanitized returns a copy safe to hand to response encoders: the password
// hash and stored refresh token are blanked even for callers that bypass
// JSON tags.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}

// Video is a published video owned by a user.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnail"`
	Duration     int64     `json:"durationSeconds"`
	Views        int64     `json:"views"`
	Published    bool      `json:"published"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Subscription links a subscriber to a channel (both are users).
type Subscription struct {
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OwnerSummary is the embedded channel owner returned with watch-history
// entries.
type OwnerSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Avatar   string `json:"avatar"`
}

// WatchEntry is one denormalized watch-history record.
type WatchEntry struct {
	Video     Video        `json:"video"`
	Owner     OwnerSummary `json:"owner"`
	WatchedAt time.Time    `json:"watchedAt"`
}

// ChannelProfile is the public view of a user's channel annotated with
// subscription counts relative to the requesting user.
type ChannelProfile struct {
	ID                string `json:"id"`
	Fullname          string `json:"fullname"`
	Username          string `json:"username"`
	AvatarURL         string `json:"avatar"`
	CoverImageURL     string `json:"coverImage"`
	SubscriberCount   int64  `json:"subscriberCount"`
	SubscribedToCount int64  `json:"subscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
