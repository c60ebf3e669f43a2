package connectors

import (
	"context"
	"fmt"

	"watson/internal"
	"watson/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	// Known counts messages stored by an earlier cycle that are already
	// processed or failed.
	Known int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	archiver, _ := s.connector.(Archiver)
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			return res, fmt.Errorf("store %s: %w", msg.MessageID, err)
		}
		res.Stored++
		if row.Status != internal.MessageFetched {
			res.Known++
		}
		if archiver != nil {
			if err := archiver.Archive(msg); err != nil {
				return res, fmt.Errorf("archive %s: %w", msg.MessageID, err)
			}
		}
	}

	return res, nil
}
