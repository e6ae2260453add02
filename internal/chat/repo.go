package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ HistoryStore = (*Repo)(nil)

// Repo is the SQL history store.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Conversation{}, &TurnRecord{})
}

// AppendTurns upserts the conversation row, locks it and writes turns after
// the current tail in one transaction, so concurrent appends never interleave.
func (r *Repo) AppendTurns(ctx context.Context, identity string, turns []Turn) error {
	if identity == "" {
		return ErrNoIdentity
	}
	if len(turns) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// create lazily; a concurrent creator wins silently
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_email"}},
			DoNothing: true,
		}).Create(&Conversation{UserEmail: identity}).Error; err != nil {
			return err
		}

		var conv Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_email = ?", identity).
			First(&conv).Error; err != nil {
			return err
		}

		records := make([]TurnRecord, 0, len(turns))
		for i, t := range turns {
			records = append(records, TurnRecord{
				ConversationID: conv.ID,
				Seq:            conv.TurnCount + i,
				Role:           t.Role,
				Content:        t.Content,
			})
		}
		if err := tx.Create(&records).Error; err != nil {
			return err
		}

		return tx.Model(&Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{
				"turn_count": gorm.Expr("turn_count + ?", len(turns)),
				"updated_at": time.Now(),
			}).Error
	})
}

func (r *Repo) LoadHistory(ctx context.Context, identity string) ([]Turn, error) {
	doc, err := r.GetDocument(ctx, identity)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// GetDocument returns the conversation in document shape. Unknown identities
// yield an empty document without timestamps.
func (r *Repo) GetDocument(ctx context.Context, identity string) (*Document, error) {
	doc := &Document{UserEmail: identity, Messages: []Turn{}}

	var conv Conversation
	if err := r.db.WithContext(ctx).
		Where("user_email = ?", identity).
		First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return doc, nil
		}
		return nil, err
	}
	doc.CreatedAt = conv.CreatedAt
	doc.UpdatedAt = conv.UpdatedAt

	var recs []TurnRecord
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	for _, rec := range recs {
		doc.Messages = append(doc.Messages, Turn{Role: rec.Role, Content: rec.Content})
	}
	return doc, nil
}
