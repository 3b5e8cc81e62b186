package service

import (
	"context"
	"strings"

	"chatapp/internal/metrics"
	"chatapp/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageService 封装消息的写入与历史查询。
type MessageService struct {
	db    *gorm.DB
	chats *ChatService
}

func NewMessageService(db *gorm.DB, chats *ChatService) *MessageService {
	return &MessageService{db: db, chats: chats}
}

type AppendInput struct {
	SenderID uint   `json:"-" validate:"required"`
	ChatID   uint   `json:"chatId" validate:"required"`
	Content  string `json:"content" validate:"required,max=10000"`
	Type     string `json:"type" validate:"oneof=text image video document"`
	FileURL  string `json:"fileUrl" validate:"omitempty,url,max=1024"`
}

// Append 写入一条消息并在同一事务内把会话的 latestMessage 指向它。
// 会话不存在或发送者不是成员时返回 ErrChatNotFound。
func (s *MessageService) Append(ctx context.Context, in AppendInput) (*models.Message, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	msg := models.Message{
		SenderID: in.SenderID,
		ChatID:   in.ChatID,
		Content:  in.Content,
		Type:     in.Type,
		FileURL:  in.FileURL,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, err := NewChatService(tx).ForMember(ctx, in.ChatID, in.SenderID)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(map[string]any{
			"latest_message_id": msg.ID,
			"updated_at":        msg.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.Inc()

	if err := s.db.WithContext(ctx).Preload("Sender").First(&msg, msg.ID).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// List 按创建顺序返回会话的全部消息，withChat 时同时带出会话本身。
func (s *MessageService) List(ctx context.Context, callerID, chatID uint, withChat bool) ([]models.Message, error) {
	if _, err := s.chats.ForMember(ctx, chatID, callerID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Preload("Sender").Where("chat_id = ?", chatID)
	if withChat {
		q = q.Preload("Chat").Preload("Chat.FirstUser").Preload("Chat.SecondUser")
	}
	msgs := []models.Message{}
	if err := q.Order("created_at asc, id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
