// Package pipeline ties storage, the sheet readers and the reconciler into
// the operations the commands and the watcher run.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"watson/internal"
	"watson/internal/codemap"
	"watson/internal/config"
	"watson/internal/optimizer"
	"watson/internal/pricehistory"
	"watson/internal/reconcile"
	"watson/internal/sheet"
	"watson/internal/storage"
)

// ErrNoInvoice means a file or message held nothing that reads as an invoice.
var ErrNoInvoice = errors.New("pipeline: no invoice lines found")

type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	mapping *codemap.Mapping
}

// NewProcessingService loads the seller-code mapping when FMCODE_PATH is set.
func NewProcessingService(db *storage.DB, cfg config.Config) (*ProcessingService, error) {
	s := &ProcessingService{db: db, cfg: cfg}
	if strings.TrimSpace(cfg.FMCodePath) != "" {
		m, err := codemap.Load(cfg.FMCodePath)
		if err != nil {
			return nil, fmt.Errorf("load seller codes: %w", err)
		}
		s.mapping = m
	}
	return s, nil
}

// RunResult is one reconciled document.
type RunResult struct {
	Run     internal.RunRow
	Results []reconcile.LineResult
	Summary reconcile.Summary
	Rows    []internal.ResultExportRow
}

func (s *ProcessingService) Options() reconcile.Options {
	return reconcile.Options{
		Optimizer: optimizer.Options{
			ConfidenceThreshold: s.cfg.ConfidenceThreshold,
			NotExceedReported:   s.cfg.NotExceedReported,
			MaxPrices:           s.cfg.MaxPrices,
			ExhaustiveLimit:     s.cfg.ExhaustiveLimit,
			NearMisses:          s.cfg.NearMisses,
		},
		Candidates: pricehistory.CandidateOptions{
			IncludeVariants: s.cfg.IncludePriceVariants,
			Bundles:         s.cfg.BundleRemarks,
		},
		SkipSingleUnit: s.cfg.SkipSingleUnit,
		Workers:        s.cfg.BatchWorkers,
	}
}

// ImportPriceList reads a price list workbook and replaces the stored list.
// Issues from reading and from building the index are both returned.
func (s *ProcessingService) ImportPriceList(path string) (internal.PriceImport, []internal.RowIssue, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.PriceImport{}, nil, err
	}
	rows, issues, err := sheet.ReadPriceList(bytes.NewReader(blob))
	if err != nil {
		return internal.PriceImport{}, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	_, buildIssues := pricehistory.Build(rows)
	issues = append(issues, buildIssues...)

	imp, err := s.db.ReplacePriceList(filepath.Base(path), rows, issues)
	if err != nil {
		return internal.PriceImport{}, nil, err
	}
	return imp, issues, nil
}

// LoadIndex builds the price history from the stored price list.
func (s *ProcessingService) LoadIndex() (*pricehistory.Index, error) {
	rows, err := s.db.ListPriceListRows()
	if err != nil {
		return nil, err
	}
	idx, _ := pricehistory.Build(rows)
	return idx, nil
}

// ReconcileFile reads an invoice workbook and records a run for it.
func (s *ProcessingService) ReconcileFile(ctx context.Context, path string) (RunResult, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return RunResult{}, err
	}
	lines, err := sheet.ReadInvoice(bytes.NewReader(blob))
	if errors.Is(err, sheet.ErrNoHeader) {
		return RunResult{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoInvoice)
	}
	if err != nil {
		return RunResult{}, err
	}
	return s.ReconcileLines(ctx, filepath.Base(path), 0, lines)
}

// ReconcileLines reconciles lines against the stored price list and stores
// the run. messageID links the run to a fetched message; 0 means none.
func (s *ProcessingService) ReconcileLines(ctx context.Context, name string, messageID int, lines []internal.InvoiceLine) (RunResult, error) {
	if len(lines) == 0 {
		return RunResult{}, ErrNoInvoice
	}
	idx, err := s.LoadIndex()
	if err != nil {
		return RunResult{}, err
	}

	results, summary, err := reconcile.New(idx, s.mapping, s.Options()).Lines(ctx, lines)
	if err != nil {
		return RunResult{}, err
	}
	rows := reconcile.ExportRows(results)

	run, err := s.db.InsertRun(internal.RunRow{
		SourceName:        name,
		TotalItems:        summary.Checked.TotalItems,
		AcceptableCount:   summary.Checked.AcceptableCount,
		UnacceptableCount: summary.Checked.UnacceptableCount,
		AverageConfidence: summary.Checked.AverageConfidence,
		TotalDiff:         summary.Checked.TotalDiff.StringFixed(2),
	}, messageID, rows)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Run: run, Results: results, Summary: summary, Rows: rows}, nil
}

// Export writes a stored run to a result workbook.
func (s *ProcessingService) Export(runID, outputPath string) error {
	run, err := s.db.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}
	rows, err := s.db.GetRunExportRows(runID)
	if err != nil {
		return err
	}
	counts, err := s.db.RunStatusCounts(runID)
	if err != nil {
		return err
	}
	return sheet.ExportResults(rows, exportSummary(*run, len(rows), counts), outputPath)
}

func exportSummary(run internal.RunRow, lines int, counts map[string]int) sheet.ExportSummary {
	runAt, err := time.Parse("2006-01-02 15:04:05", run.CreatedAt)
	if err != nil {
		runAt = time.Now()
	}
	return sheet.ExportSummary{
		RunID:             run.ID,
		Source:            run.SourceName,
		RunAt:             runAt,
		Lines:             lines,
		Acceptable:        run.AcceptableCount,
		Unacceptable:      run.UnacceptableCount,
		AverageConfidence: run.AverageConfidence,
		TotalDiff:         run.TotalDiff,
		ByStatus:          counts,
	}
}
