package store

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/config"
	"github.com/suPer8Hu/gemini-chat/internal/store/boltstore"
	"github.com/suPer8Hu/gemini-chat/internal/store/mongostore"
	"gorm.io/gorm"
)

// OpenHistory returns the configured history backend and its closer.
// gdb is only used by the sql backend.
func OpenHistory(ctx context.Context, cfg config.Config, gdb *gorm.DB) (chat.HistoryStore, func() error, error) {
	switch cfg.HistoryBackend {
	case "", "sql":
		if gdb == nil {
			return nil, nil, fmt.Errorf("history backend sql needs a database")
		}
		return chat.NewRepo(gdb), func() error { return nil }, nil

	case "mongo":
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		return s, func() error { return s.Close(context.Background()) }, nil

	case "bolt":
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("bolt open: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported HISTORY_BACKEND=%q", cfg.HistoryBackend)
	}
}
