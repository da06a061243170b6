package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LifecycleState names the partition an identity record belongs to.
type LifecycleState string

const (
	// StatePending indicates a signup request awaiting review.
	StatePending LifecycleState = "pending"
	// StateActive indicates an approved administrator.
	StateActive LifecycleState = "active"
	// StateRejected indicates a denied request or a revoked administrator.
	StateRejected LifecycleState = "rejected"
)

// LiveStates are the partitions in which an email may appear at most once.
var LiveStates = []LifecycleState{StatePending, StateActive}

// Live reports whether s is pending or active.
func (s LifecycleState) Live() bool {
	return s == StatePending || s == StateActive
}

// Valid reports whether s is one of the known lifecycle states.
func (s LifecycleState) Valid() bool {
	switch s {
	case StatePending, StateActive, StateRejected:
		return true
	}
	return false
}

// IdentityRecord is one person's claim to administrative access.
// The ID is assigned once at submit time and kept across every state move.
type IdentityRecord struct {
	ID             string         `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Name           string         `gorm:"size:120" bson:"name" json:"name"`
	DateOfBirth    string         `gorm:"size:64" bson:"dob" json:"dob"`
	Email          string         `gorm:"size:254;not null;index;uniqueIndex:uniq_identity_records_live_email,where:state <> 'rejected'" bson:"email" json:"email"`
	SecretHash     string         `gorm:"not null" bson:"secret_hash" json:"-"`
	State          LifecycleState `gorm:"type:varchar(20);not null;default:'pending';index" bson:"state" json:"state"`
	StateChangedAt time.Time      `bson:"state_changed_at" json:"state_changed_at"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (IdentityRecord) TableName() string {
	return "identity_records"
}

// BeforeCreate assigns an ID when the caller did not.
func (r *IdentityRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
