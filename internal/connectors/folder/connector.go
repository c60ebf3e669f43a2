// Package folder reads invoices dropped into a directory: .eml messages and
// bare workbooks.
package folder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"watson/internal"
	"watson/internal/config"
	"watson/internal/connectors"
	"watson/internal/intake"
)

const Provider = "folder"

type Connector struct {
	inboxDir   string
	archiveDir string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("INBOX_DIR", cfg.InboxDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		return nil, err
	}
	return &Connector{inboxDir: cfg.InboxDir, archiveDir: cfg.ArchiveDir}, nil
}

// FetchInbox returns up to max files, oldest first. The label is ignored;
// the inbox is the configured directory.
func (c *Connector) FetchInbox(ctx context.Context, _ string, max int) ([]internal.FetchedMail, error) {
	entries, err := os.ReadDir(c.inboxDir)
	if err != nil {
		return nil, err
	}

	type file struct {
		name    string
		modTime time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if !isMail(e.Name()) && !intake.IsWorkbook(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].name < files[j].name
	})
	if max > 0 && len(files) > max {
		files = files[:max]
	}

	out := make([]internal.FetchedMail, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(c.inboxDir, f.name))
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(raw)
		msg := internal.FetchedMail{
			Provider:   Provider,
			MessageID:  fmt.Sprintf("%s@%s", f.name, hex.EncodeToString(sum[:6])),
			Subject:    f.name,
			ReceivedAt: f.modTime.UTC().Format(time.RFC3339),
			Raw:        raw,
			Name:       f.name,
		}
		if isMail(f.name) {
			if h, err := connectors.ReadHeaders(raw); err == nil {
				msg.Subject = firstNonEmpty(h.Subject, f.name)
				msg.From = h.From
				if h.ReceivedAt != "" {
					msg.ReceivedAt = h.ReceivedAt
				}
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// Archive moves a stored file out of the inbox. Without an archive
// directory the file is removed.
func (c *Connector) Archive(msg internal.FetchedMail) error {
	src := filepath.Join(c.inboxDir, msg.Name)
	if c.archiveDir == "" {
		return os.Remove(src)
	}
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(c.archiveDir, msg.Name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(msg.Name)
		dst = filepath.Join(c.archiveDir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(msg.Name, ext), time.Now().UnixNano(), ext))
	}
	return os.Rename(src, dst)
}

func isMail(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".eml")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
