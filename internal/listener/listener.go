// Package listener runs the invoice watcher: fetch new mail or dropped
// files, reconcile every invoice found and write a result workbook per run.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"watson/internal"
	"watson/internal/config"
	"watson/internal/connectors"
	folderconnector "watson/internal/connectors/folder"
	gmailconnector "watson/internal/connectors/gmail"
	imapconnector "watson/internal/connectors/imap"
	"watson/internal/pipeline"
	"watson/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	connector connectors.MailConnector
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// WithConnector replaces the source picked from WATCH_SOURCE.
func (s *Service) WithConnector(c connectors.MailConnector) *Service {
	s.connector = c
	return s
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Skipped   int
	Failed    int
	Exported  []string
}

func (s *Service) Run(ctx context.Context) error {
	fmt.Printf("watching source=%s label=%s every %ds\n", s.source(), s.cfg.WatchLabel, s.cfg.WatchIntervalSec)
	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			fmt.Printf("watch cycle error: %v\n", err)
		} else if res.Fetched > 0 || res.Processed > 0 || res.Failed > 0 {
			fmt.Printf("watch cycle done fetched=%d stored=%d processed=%d skipped=%d failed=%d exported=%d\n",
				res.Fetched, res.Stored, res.Processed, res.Skipped, res.Failed, len(res.Exported))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.WatchIntervalSec) * time.Second):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	mailConnector := s.connector
	if mailConnector == nil {
		c, err := NewConnector(ctx, s.cfg)
		if err != nil {
			return res, err
		}
		mailConnector = c
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.WatchLabel, s.cfg.WatchFetchMax)
	res.Fetched, res.Stored = fetchResult.Fetched, fetchResult.Stored
	if err != nil {
		return res, err
	}

	processor, err := pipeline.NewProcessingService(s.db, s.cfg)
	if err != nil {
		return res, err
	}
	processed, err := processor.ProcessPending(ctx, s.cfg.WatchFetchMax)
	for _, p := range processed {
		switch {
		case len(p.Runs) > 0:
			res.Processed++
		case p.Status == internal.MessageSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
		for _, run := range p.Runs {
			name := fmt.Sprintf("%d_%s_%s.xlsx", p.MessageID, sanitizeName(strings.TrimSuffix(run.Run.SourceName, filepath.Ext(run.Run.SourceName))), shortID(run.Run.ID))
			outputPath := filepath.Join(s.cfg.OutputDir, "watch", name)
			if err := processor.Export(run.Run.ID, outputPath); err != nil {
				return res, err
			}
			res.Exported = append(res.Exported, outputPath)
			fmt.Printf("reconciled %s lines=%d acceptable=%d/%d -> %s\n",
				run.Run.SourceName, len(run.Rows), run.Run.AcceptableCount, run.Run.TotalItems, outputPath)
		}
	}
	return res, err
}

func (s *Service) source() string {
	if s.connector != nil {
		return "custom"
	}
	return strings.ToLower(strings.TrimSpace(s.cfg.WatchSource))
}

// NewConnector builds the mail source named by WATCH_SOURCE.
func NewConnector(ctx context.Context, cfg config.Config) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.WatchSource)) {
	case "", folderconnector.Provider:
		return folderconnector.NewConnector(cfg)
	case gmailconnector.Provider:
		return gmailconnector.NewConnector(ctx, cfg)
	case imapconnector.Provider:
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported watch source: %s", cfg.WatchSource)
	}
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "\"", "_")
	out := repl.Replace(input)
	if r := []rune(out); len(r) > 80 {
		out = string(r[:80])
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
