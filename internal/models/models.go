package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// 消息类型。
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageVideo    = "video"
	MessageDocument = "document"
)

// User 的 JSON 形式即公开投影，不含密码哈希。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:128" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	PhoneNo      string    `gorm:"size:32" json:"phoneNo,omitempty"`
	AvatarURL    string    `gorm:"size:512" json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Chat 是两个用户之间唯一的会话。FirstUserID 为发起方。
// PairKey 上的唯一索引保证任意无序用户对至多一个会话。
type Chat struct {
	ID              uint     `gorm:"primaryKey"`
	FirstUserID     uint     `gorm:"index;not null"`
	SecondUserID    uint     `gorm:"index;not null"`
	PairKey         string   `gorm:"uniqueIndex;size:64;not null"`
	FirstUser       User     `gorm:"foreignKey:FirstUserID"`
	SecondUser      User     `gorm:"foreignKey:SecondUserID"`
	LatestMessageID *uint    `gorm:"index"`
	LatestMessage   *Message `gorm:"foreignKey:LatestMessageID"`
	CreatedAt       time.Time
	UpdatedAt       time.Time `gorm:"index"`
}

// PairKey 返回无序用户对的规范化键。
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(uint64(a), 10) + ":" + strconv.FormatUint(uint64(b), 10)
}

// Has 判断 userID 是否为会话成员。
func (c *Chat) Has(userID uint) bool {
	return userID != 0 && (c.FirstUserID == userID || c.SecondUserID == userID)
}

// Peer 返回会话中另一方的 ID。
func (c *Chat) Peer(userID uint) uint {
	if c.FirstUserID == userID {
		return c.SecondUserID
	}
	return c.FirstUserID
}

func (c Chat) MarshalJSON() ([]byte, error) {
	first, second := c.FirstUser, c.SecondUser
	if first.ID == 0 {
		first.ID = c.FirstUserID
	}
	if second.ID == 0 {
		second.ID = c.SecondUserID
	}
	return json.Marshal(struct {
		ID            uint      `json:"id"`
		Users         []User    `json:"users"`
		LatestMessage *Message  `json:"latestMessage"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}{
		ID:            c.ID,
		Users:         []User{first, second},
		LatestMessage: c.LatestMessage,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	})
}

// Message 创建后不可修改。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SenderID  uint      `gorm:"index;not null" json:"-"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"senderId"`
	ChatID    uint      `gorm:"index:idx_msg_chat_created,priority:1;not null" json:"chatId"`
	Chat      *Chat     `gorm:"foreignKey:ChatID" json:"chat,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Type      string    `gorm:"size:16;not null;default:text" json:"type"`
	FileURL   string    `gorm:"size:1024" json:"fileUrl,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_msg_chat_created,priority:2" json:"createdAt"`
}
