package listener

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"watson/internal/config"
	"watson/internal/pipeline"
	"watson/internal/storage"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestRunCycleFolder(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.Config{
		DBPath:              filepath.Join(tmp, "watson.db"),
		OutputDir:           filepath.Join(tmp, "out"),
		InboxDir:            filepath.Join(tmp, "inbox"),
		ArchiveDir:          filepath.Join(tmp, "archive"),
		RawMailDir:          filepath.Join(tmp, "raw"),
		ConfidenceThreshold: 0.95,
		SkipSingleUnit:      true,
		BatchWorkers:        1,
		WatchSource:         "folder",
		WatchLabel:          "INBOX",
		WatchFetchMax:       10,
		WatchIntervalSec:    1,
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	prices := filepath.Join(tmp, "prices.xlsx")
	if err := os.WriteFile(prices, mkXLSX([][]any{
		{"Item Code", "Valid From", "Valid To", "Comm. Price (Inc.V)", "Invoice 62% ExcV", "Remark"},
		{"100200", "2026-01-01", "", 150, 100, ""},
		{"100200", "2026-01-01", "", 130, 90, "Promo"},
	}), 0o644); err != nil {
		t.Fatal(err)
	}
	proc, err := pipeline.NewProcessingService(db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := proc.ImportPriceList(prices); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	invoice := mkXLSX([][]any{
		{"Invoice No", "Date", "Item Code", "Qty", "Total Cost Exclusive"},
		{"INV-9", "2026-01-06", "100200", 10, 950},
	})
	if err := os.WriteFile(filepath.Join(cfg.InboxDir, "INV-9.xlsx"), invoice, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.InboxDir, "readme.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(db, cfg)
	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 1 || res.Processed != 1 || res.Failed != 0 || len(res.Exported) != 1 {
		t.Fatalf("cycle = %+v", res)
	}
	if filepath.Dir(res.Exported[0]) != filepath.Join(cfg.OutputDir, "watch") {
		t.Fatalf("export path = %s", res.Exported[0])
	}
	if _, err := os.Stat(res.Exported[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(cfg.ArchiveDir, "INV-9.xlsx")); err != nil {
		t.Fatalf("not archived: %v", err)
	}

	again, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Fetched != 0 || again.Processed != 0 {
		t.Fatalf("second cycle = %+v", again)
	}
}

func TestNewConnectorRejectsUnknownSource(t *testing.T) {
	if _, err := NewConnector(context.Background(), config.Config{WatchSource: "pigeon"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewConnector(context.Background(), config.Config{WatchSource: "imap"}); err == nil {
		t.Fatal("expected missing IMAP_HOST error")
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName(`INV 1/2: "a"`); got != "INV_1_2___a_" {
		t.Fatalf("sanitizeName = %q", got)
	}

	thai := sanitizeName(strings.Repeat("ใบแจ้งหนี้", 12))
	if !utf8.ValidString(thai) || utf8.RuneCountInString(thai) != 80 {
		t.Fatalf("sanitizeName cut %q (%d runes)", thai, utf8.RuneCountInString(thai))
	}
}
