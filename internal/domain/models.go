// Package domain defines the persistence models for users, rooms, room
// membership, messages and tasks. These types are mapped with GORM and form
// the core data layer of the chat application.
package domain

import (
	"sort"
	"strings"
	"time"
)

// DefaultAvatarURL is assigned to users and group rooms created without a picture.
const DefaultAvatarURL = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

// User is a registered account.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique, stored case-folded.
//   - PasswordHash: bcrypt hash, never serialized.
//   - Pic: profile image URL (object store or default avatar).
//   - Description / PhoneNo / DOB: optional profile fields.
type User struct {
	ID           string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	Name         string     `json:"name"                  gorm:"type:varchar(120);not null"`
	Email        string     `json:"email"                 gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string     `json:"-"                     gorm:"type:varchar(100);not null"`
	Pic          string     `json:"pic"                   gorm:"type:text"`
	Description  string     `json:"description,omitempty" gorm:"type:text"`
	PhoneNo      string     `json:"phone_no,omitempty"    gorm:"type:varchar(32)"`
	DOB          *time.Time `json:"dob,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Room is a conversation between two (direct) or more (group) users.
//
// Direct rooms carry a DirectKey built from the sorted member pair so that the
// unique index rejects a second room for the same pair. Group rooms carry a
// GroupName that is unique among groups. Both keys stay NULL for the other
// kind, which unique indexes ignore.
type Room struct {
	ID              string    `json:"id"                          gorm:"type:char(36);primaryKey"`
	Name            string    `json:"name"                        gorm:"type:varchar(255);not null;default:''"`
	IsGroup         bool      `json:"is_group"                    gorm:"not null;default:false"`
	AdminID         *string   `json:"admin_id,omitempty"          gorm:"type:char(36)"`
	LatestMessageID *string   `json:"latest_message_id,omitempty" gorm:"type:char(36)"`
	Pic             string    `json:"pic,omitempty"               gorm:"type:text"`
	DirectKey       *string   `json:"-"                           gorm:"type:varchar(80);uniqueIndex:ux_rooms_direct"`
	GroupName       *string   `json:"-"                           gorm:"type:varchar(255);uniqueIndex:ux_rooms_group"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"                  gorm:"index:idx_rooms_updated"`

	Members       []User   `json:"members,omitempty"        gorm:"many2many:room_members;joinForeignKey:RoomID;joinReferences:UserID"`
	LatestMessage *Message `json:"latest_message,omitempty" gorm:"-"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// RoomMember is the membership join row. The composite primary key keeps
// membership unique.
type RoomMember struct {
	RoomID    string    `json:"room_id" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:char(36);primaryKey;index:idx_member_user"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for RoomMember.
func (RoomMember) TableName() string { return "room_members" }

// Message is a single post in a room. Content may be empty when Image is set.
type Message struct {
	ID        string    `json:"id"              gorm:"type:char(36);primaryKey"`
	RoomID    string    `json:"room_id"         gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	SenderID  string    `json:"sender_id"       gorm:"type:char(36);not null"`
	Content   string    `json:"content"         gorm:"type:text;not null;default:''"`
	Image     string    `json:"image,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"      gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Sender *User `json:"sender,omitempty" gorm:"foreignKey:SenderID;references:ID"`
	Room   *Room `json:"-"                gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Task is an item on a user's personal task list.
type Task struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_tasks,priority:1"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Completed bool      `json:"completed"  gorm:"not null;default:false"`
	Category  string    `json:"category"   gorm:"type:varchar(64);not null;default:'';index:idx_user_tasks,priority:2"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }

// DirectKeyFor returns the order-independent key for the pair (a, b).
func DirectKeyFor(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
