package service

import (
	"context"
	"errors"

	"chatapp/internal/metrics"
	"chatapp/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatService 负责两人会话的查找与创建。
type ChatService struct {
	db *gorm.DB
}

func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db}
}

func withChatRefs(q *gorm.DB) *gorm.DB {
	return q.Preload("FirstUser").
		Preload("SecondUser").
		Preload("LatestMessage").
		Preload("LatestMessage.Sender")
}

// GetOrCreate 返回 caller 与 peer 之间的会话，不存在时创建。
// 并发创建由 pair_key 唯一索引兜底：插入冲突时回读已存在的会话。
func (s *ChatService) GetOrCreate(ctx context.Context, callerID, peerID uint) (*models.Chat, bool, error) {
	if err := s.checkPair(ctx, callerID, peerID); err != nil {
		return nil, false, err
	}
	chat, err := s.findByPair(ctx, callerID, peerID)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return nil, false, err
	}
	chat, err = s.insert(ctx, callerID, peerID)
	if errors.Is(err, ErrChatExists) {
		chat, err = s.findByPair(ctx, callerID, peerID)
		return chat, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// Create 严格创建：该用户对已有会话时返回 ErrChatExists。
func (s *ChatService) Create(ctx context.Context, callerID, peerID uint) (*models.Chat, error) {
	if err := s.checkPair(ctx, callerID, peerID); err != nil {
		return nil, err
	}
	if _, err := s.findByPair(ctx, callerID, peerID); err == nil {
		return nil, ErrChatExists
	} else if !errors.Is(err, ErrChatNotFound) {
		return nil, err
	}
	return s.insert(ctx, callerID, peerID)
}

// FindWithPeer 返回 caller 与 peer 之间已有的会话。
func (s *ChatService) FindWithPeer(ctx context.Context, callerID, peerID uint) (*models.Chat, error) {
	if peerID == 0 {
		return nil, ErrPeerRequired
	}
	return s.findByPair(ctx, callerID, peerID)
}

func (s *ChatService) Get(ctx context.Context, chatID uint) (*models.Chat, error) {
	var chat models.Chat
	if err := withChatRefs(s.db.WithContext(ctx)).First(&chat, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

// ForMember 返回会话；userID 不是成员时与会话不存在同样处理。
func (s *ChatService) ForMember(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	if chatID == 0 {
		return nil, ErrChatRequired
	}
	var chat models.Chat
	err := s.db.WithContext(ctx).Select("id", "first_user_id", "second_user_id").First(&chat, chatID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if !chat.Has(userID) {
		return nil, ErrChatNotFound
	}
	return &chat, nil
}

// ListForUser 返回用户参与的会话，最近活跃的在前。
func (s *ChatService) ListForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	q := s.db.WithContext(ctx).Where("first_user_id = ? OR second_user_id = ?", userID, userID)
	return s.list(q)
}

// ListAll 返回全部会话，最近活跃的在前。
func (s *ChatService) ListAll(ctx context.Context) ([]models.Chat, error) {
	return s.list(s.db.WithContext(ctx))
}

func (s *ChatService) list(q *gorm.DB) ([]models.Chat, error) {
	chats := []models.Chat{}
	if err := withChatRefs(q).Order("updated_at desc, id desc").Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *ChatService) checkPair(ctx context.Context, callerID, peerID uint) error {
	if peerID == 0 {
		return ErrPeerRequired
	}
	if peerID == callerID {
		return ErrSelfChat
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", peerID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *ChatService) findByPair(ctx context.Context, a, b uint) (*models.Chat, error) {
	var chat models.Chat
	err := withChatRefs(s.db.WithContext(ctx)).Where("pair_key = ?", models.PairKey(a, b)).First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (s *ChatService) insert(ctx context.Context, callerID, peerID uint) (*models.Chat, error) {
	chat := models.Chat{
		FirstUserID:  callerID,
		SecondUserID: peerID,
		PairKey:      models.PairKey(callerID, peerID),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrChatExists
		}
		return nil, err
	}
	metrics.ChatsCreated.Inc()
	return s.Get(ctx, chat.ID)
}
