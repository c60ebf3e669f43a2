package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"watson/internal"
	"watson/internal/storage"
)

type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

// Store writes the raw bytes under their sha256 and records the message.
// A message already known keeps its status, so it is processed once.
func (s *MailStoreService) Store(msg internal.FetchedMail) (internal.MessageRow, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.MessageRow{}, err
	}

	ext := ".eml"
	if msg.Name != "" && !strings.EqualFold(filepath.Ext(msg.Name), ".eml") {
		ext = strings.ToLower(filepath.Ext(msg.Name))
	}
	rawPath := filepath.Join(s.rawMailDir, hash+ext)
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.MessageRow{}, err
		}
	}

	return s.db.UpsertMessage(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, internal.MessageFetched)
}
