package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository persists logs so they survive restarts. The in-memory store
// writes through to it and hydrates cold keys from it.
type Repository interface {
	SaveMessage(ctx context.Context, m Message) error
	LoadMessages(ctx context.Context, key LogKey) ([]Message, error)
	SaveSession(ctx context.Context, s Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	SaveThread(ctx context.Context, t ThreadMeta) error
	LoadThread(ctx context.Context, key string) (*ThreadMeta, error)
}

// MessageRecord is the stored form of a Message
type MessageRecord struct {
	Seq        uint      `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"uniqueIndex;size:36"`
	Scope      string    `gorm:"index:idx_log,priority:1;size:16"`
	OwnerID    string    `gorm:"index:idx_log,priority:2"`
	ThreadKey  string    `gorm:"index:idx_log,priority:3"`
	Role       string    `gorm:"size:16"`
	SenderID   string
	SenderName string
	Text       string
	PersonaID  string `gorm:"size:32"`
	CreatedAt  time.Time
}

func (MessageRecord) TableName() string { return "messages" }

// SessionRecord is the stored form of a Session
type SessionRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	PersonaID string `gorm:"size:32"`
	Closed    bool
	CreatedAt time.Time
}

func (SessionRecord) TableName() string { return "sessions" }

// ThreadRecord is the stored form of ThreadMeta
type ThreadRecord struct {
	Key      string `gorm:"primaryKey;column:thread_key"`
	Kind     string `gorm:"size:8"`
	Identity string
	URL      string
	Title    string
	FileName string
	Preview  string
}

func (ThreadRecord) TableName() string { return "threads" }

type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates the repository and migrates its tables
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&MessageRecord{}, &SessionRecord{}, &ThreadRecord{}); err != nil {
		return nil, err
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) SaveMessage(ctx context.Context, m Message) error {
	rec := MessageRecord{
		ID:         m.ID,
		Scope:      string(m.Scope),
		OwnerID:    m.OwnerID,
		ThreadKey:  m.ThreadKey,
		Role:       m.Role,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		PersonaID:  m.PersonaID,
		CreatedAt:  m.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *GormRepository) LoadMessages(ctx context.Context, key LogKey) ([]Message, error) {
	var recs []MessageRecord
	err := r.db.WithContext(ctx).
		Where("scope = ? AND owner_id = ? AND thread_key = ?", string(key.Scope), key.ID, key.ThreadKey).
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Message{
			ID:         rec.ID,
			Scope:      Scope(rec.Scope),
			OwnerID:    rec.OwnerID,
			ThreadKey:  rec.ThreadKey,
			Role:       rec.Role,
			SenderID:   rec.SenderID,
			SenderName: rec.SenderName,
			Text:       rec.Text,
			PersonaID:  rec.PersonaID,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return out, nil
}

func (r *GormRepository) SaveSession(ctx context.Context, s Session) error {
	rec := SessionRecord{ID: s.ID, PersonaID: s.PersonaID, Closed: s.Closed, CreatedAt: s.CreatedAt}
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *GormRepository) LoadSession(ctx context.Context, id string) (*Session, error) {
	var rec SessionRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Session{ID: rec.ID, PersonaID: rec.PersonaID, Closed: rec.Closed, CreatedAt: rec.CreatedAt}, nil
}

func (r *GormRepository) SaveThread(ctx context.Context, t ThreadMeta) error {
	rec := ThreadRecord{
		Key:      t.Key,
		Kind:     t.Kind,
		Identity: t.Identity,
		URL:      t.URL,
		Title:    t.Title,
		FileName: t.FileName,
		Preview:  t.Preview,
	}
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *GormRepository) LoadThread(ctx context.Context, key string) (*ThreadMeta, error) {
	var rec ThreadRecord
	err := r.db.WithContext(ctx).First(&rec, "thread_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ThreadMeta{
		Key:      rec.Key,
		Kind:     rec.Kind,
		Identity: rec.Identity,
		URL:      rec.URL,
		Title:    rec.Title,
		FileName: rec.FileName,
		Preview:  rec.Preview,
	}, nil
}
