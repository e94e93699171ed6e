package models

import "time"

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionConnected  SessionStatus = "connected"
	SessionExpired    SessionStatus = "expired"
	SessionTerminated SessionStatus = "terminated"
)

// IsFinal reports whether no further transition is allowed.
func (s SessionStatus) IsFinal() bool {
	return s == SessionExpired || s == SessionTerminated
}

// WalletSession is one pairing between this service and an external wallet.
// WalletAddress is set if and only if Status is connected.
type WalletSession struct {
	SessionID     string        `gorm:"primaryKey;type:varchar(64)" json:"session_id"`
	PairingURI    string        `gorm:"type:text;not null" json:"pairing_uri"`
	Topic         string        `gorm:"type:varchar(128);not null" json:"-"`
	WalletAddress *string       `gorm:"type:varchar(64)" json:"wallet_address,omitempty"`
	Status        SessionStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ExpiresAt     time.Time     `gorm:"index" json:"expires_at"`
}

func (WalletSession) TableName() string { return "wallet_sessions" }
