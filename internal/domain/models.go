// Package domain defines the persistence models for profiles, conversations,
// participants, and messages. These types are mapped with GORM and form the
// core data layer of the chat backend.
package domain

import (
	"time"
)

// Presence states a profile may advertise.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// Conversation types.
const (
	ConversationDM    = "dm"
	ConversationGroup = "group"
)

// Message content types. Only text is exercised today; image and file are
// reserved for attachment support.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// Profile is a principal's public identity. The primary key equals the
// identity provider's subject, so a profile row exists iff the principal has
// been provisioned.
//
// Fields:
//   - ID: stable principal identifier (char(36) UUID, primary key).
//   - Username: unique handle, required; defaulted from the email local-part
//     at provisioning time.
//   - DisplayName / AvatarURL: optional presentation fields.
//   - Status: presence string (online/away/offline), defaults to "online".
//   - LastSeen: last activity timestamp, bumped on status changes.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Profile struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Username    string    `json:"username"     gorm:"type:varchar(64);not null;uniqueIndex:ux_profiles_username"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255)"`
	AvatarURL   string    `json:"avatar_url"   gorm:"type:text"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'online';check:status IN ('online','away','offline')"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Conversation is a DM (exactly two participants) or a group thread.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Name: optional, meaningful only for groups; nil for DMs.
//   - Type: "dm" or "group" (enforced by DB constraint). Immutable after
//     creation in practice, not enforced at the data layer.
//   - CreatedBy: profile reference of the creator; nullable so conversations
//     survive creator deletion.
//   - CreatedAt / UpdatedAt: UpdatedAt is bumped by the message service when
//     a message is appended (application-level, not a trigger).
type Conversation struct {
	ID        string    `json:"id"                    gorm:"type:char(36);primaryKey"`
	Name      *string   `json:"name,omitempty"        gorm:"type:varchar(255)"`
	Type      string    `json:"type"                  gorm:"type:varchar(16);not null;check:type IN ('dm','group')"`
	CreatedBy *string   `json:"created_by,omitempty"  gorm:"type:char(36)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Creator is the profile that opened the conversation. The reference is
	// set to NULL if the creator's profile is removed.
	Creator *Profile `json:"-" gorm:"foreignKey:CreatedBy;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Participant links one profile to one conversation. A principal joins a
// conversation at most once (unique on conversation_id + user_id). Rows are
// removed only by cascade when the conversation or profile is deleted; there
// is no explicit leave operation.
type Participant struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;uniqueIndex:ux_participants_conv_user,priority:1"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;uniqueIndex:ux_participants_conv_user,priority:2;index:idx_participants_user"`
	JoinedAt       time.Time `json:"joined_at"`

	// Membership rows cascade with both ends of the relation.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User         Profile      `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "participants" }

// Message is a single unit of conversation content. Messages are never
// physically removed: deletion sets IsDeleted and reads filter the flag.
// Editing replaces Content and stamps EditedAt; no history is retained.
//
// The sender must be a participant of the conversation at write time. That is
// an authorization rule, not a schema constraint: it is not re-checked after
// membership changes, so a removed participant's past messages stay visible.
type Message struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderID       string     `json:"sender_id"       gorm:"type:char(36);not null;index"`
	Content        string     `json:"content"         gorm:"type:text;not null"`
	Type           string     `json:"type"            gorm:"type:varchar(16);not null;default:'text';check:type IN ('text','image','file')"`
	CreatedAt      time.Time  `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"      gorm:"not null;default:false"`

	// Messages are cascade-deleted with their conversation. The sender
	// reference is left intact on profile deletion so history keeps its
	// attribution; the participant rows cascade instead.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ValidStatus reports whether s is an allowed presence value.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// ValidConversationType reports whether t is an allowed conversation type.
func ValidConversationType(t string) bool {
	return t == ConversationDM || t == ConversationGroup
}

// ValidMessageType reports whether t is an allowed message content type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}
