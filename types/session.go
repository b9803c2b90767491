package types

import "time"

// DeviceInfo describes the client that opened a session. It is display
// metadata only and never used for security decisions.
type DeviceInfo struct {
	UserAgent  string `json:"userAgent" db:"user_agent" bson:"user_agent"`
	IP         string `json:"ip" db:"ip" bson:"ip"`
	DeviceType string `json:"deviceType" db:"device_type" bson:"device_type"`
	Browser    string `json:"browser" db:"browser" bson:"browser"`
}

// Session is one login instance belonging to a user.
type Session struct {
	// ID is the public identifier of the session, safe to show to clients.
	ID int64 `json:"id" db:"id" bson:"_id"`

	// TokenHash is the SHA-256 hex digest of the session token. The token
	// itself is only ever returned in the creation response.
	TokenHash string `json:"-" db:"token_hash" bson:"token_hash"`

	UserID       int        `json:"userId" db:"user_id" bson:"user_id"`
	Device       DeviceInfo `json:"deviceInfo" db:"-" bson:"device"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at" bson:"created_at"`
	LastActivity time.Time  `json:"lastActivity" db:"last_activity" bson:"last_activity"`
	ExpiresAt    time.Time  `json:"expiresAt" db:"expires_at" bson:"expires_at"`
	IsActive     bool       `json:"isActive" db:"is_active" bson:"is_active"`
}

// ValidAt reports whether the session is usable at now: it must be active
// and now must be strictly before ExpiresAt.
func (s Session) ValidAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// Summary drops everything a client must not see.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Device:       s.Device,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
	}
}

// SessionSummary is the "active sessions" view of a session.
type SessionSummary struct {
	ID           int64      `json:"id"`
	Device       DeviceInfo `json:"deviceInfo"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity time.Time  `json:"lastActivity"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Current      bool       `json:"current"`
}

// SessionGrant is what a caller receives when a session is created.
type SessionGrant struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}
