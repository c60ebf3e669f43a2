package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"watson/internal"
	"watson/internal/config"
	"watson/internal/reconcile"
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

var priceListRows = [][]any{
	{"Item Code", "Description", "Valid From", "Valid To", "Standard Price (Inc.V)", "Comm. Price (Inc.V)", "Invoice 62% (Inc.V)", "Invoice 62% ExcV", "Remark"},
	{"100200", "Serum 30ml", "2026-01-01", "", 599, 150, 107, 100, ""},
	{"100200", "Serum 30ml", "2026-01-01", "", 599, 130, 96.3, 90, "2 For 599"},
	{"", "no code", "2026-01-01", "", 1, "", "", 1, ""},
}

var invoiceRows = [][]any{
	{"Invoice No", "Store", "Date", "Item Code", "Item Description", "Qty", "Total Cost Exclusive"},
	{"INV-1", "1203", "2026-01-06", "100200", "Serum 30ml", 10, 950},
	{"INV-1", "1203", "2026-01-06", "999999", "Unknown", 2, 200},
	{"INV-1", "1203", "2026-01-06", "100200", "Serum 30ml", -1, -100},
}

type fixture struct {
	tmp string
	db  *storage.DB
	svc *ProcessingService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{ConfidenceThreshold: 0.95, SkipSingleUnit: true, BatchWorkers: 2}
	svc, err := NewProcessingService(db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{tmp: tmp, db: db, svc: svc}
}

func (f fixture) write(t *testing.T, name string, blob []byte) string {
	t.Helper()
	path := filepath.Join(f.tmp, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f fixture) importPriceList(t *testing.T) {
	t.Helper()
	imp, issues, err := f.svc.ImportPriceList(f.write(t, "prices.xlsx", mkXLSX(priceListRows)))
	if err != nil {
		t.Fatal(err)
	}
	if imp.RowCount != 3 || len(issues) != 1 || imp.IssueCount != 1 {
		t.Fatalf("import = %+v issues = %+v", imp, issues)
	}
}

func TestReconcileFileAndExport(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.ReconcileFile(context.Background(), f.write(t, "early.xlsx", mkXLSX(invoiceRows))); !errors.Is(err, storage.ErrNoPriceList) {
		t.Fatalf("before import err = %v", err)
	}

	f.importPriceList(t)

	res, err := f.svc.ReconcileFile(context.Background(), f.write(t, "invoice.xlsx", mkXLSX(invoiceRows)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 3 {
		t.Fatalf("results = %d", len(res.Results))
	}
	want := []reconcile.Status{reconcile.StatusOK, reconcile.StatusItemNotFound, reconcile.StatusReturn}
	for i, st := range want {
		if res.Results[i].Status != st {
			t.Fatalf("line %d status = %s, want %s", i, res.Results[i].Status, st)
		}
	}
	if res.Rows[0].QtyBuy1 != 5 || res.Rows[0].QtyPro != 5 {
		t.Fatalf("split = %+v", res.Rows[0])
	}
	if res.Run.ID == "" || res.Run.SourceName != "invoice.xlsx" || res.Run.TotalItems != 2 || res.Run.AcceptableCount != 1 {
		t.Fatalf("run = %+v", res.Run)
	}

	out := filepath.Join(f.tmp, "out", "result.xlsx")
	if err := f.svc.Export(res.Run.ID, out); err != nil {
		t.Fatal(err)
	}
	book, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer book.Close()
	rows, err := book.GetRows("Results")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[1][3] != "100200" {
		t.Fatalf("exported rows = %v", rows)
	}

	if err := f.svc.Export("missing", out); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestReconcileFileWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	f.importPriceList(t)

	_, err := f.svc.ReconcileFile(context.Background(), f.write(t, "prices-again.xlsx", mkXLSX([][]any{{"Hello"}, {"world"}})))
	if !errors.Is(err, ErrNoInvoice) {
		t.Fatalf("err = %v", err)
	}
}

func mkEML(subject string, attachments map[string][]byte) []byte {
	var b strings.Builder
	b.WriteString("From: shop@example.com\r\nTo: ap@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=\"XYZ\"\r\n\r\n")
	b.WriteString("--XYZ\r\nContent-Type: text/plain\r\n\r\nplease check\r\n")
	for name, data := range attachments {
		b.WriteString("--XYZ\r\n")
		b.WriteString("Content-Type: application/octet-stream; name=\"" + name + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(data) + "\r\n")
	}
	b.WriteString("--XYZ--\r\n")
	return []byte(b.String())
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t)
	f.importPriceList(t)

	store := func(id, name string, raw []byte) internal.MessageRow {
		row, err := f.db.UpsertMessage("test", id, id, "shop@example.com", "2026-01-06T10:00:00Z", id, f.write(t, name, raw), internal.MessageFetched)
		if err != nil {
			t.Fatal(err)
		}
		return row
	}
	invoiceMail := store("m1", "m1.eml", mkEML("Invoice INV-1", map[string][]byte{"INV-1.xlsx": mkXLSX(invoiceRows)}))
	chatter := store("m2", "m2.eml", mkEML("Lunch?", nil))
	bareBook := store("m3", "m3.xlsx", mkXLSX(invoiceRows))
	broken := store("m4", "m4.eml", mkEML("Invoice INV-2", map[string][]byte{"INV-2.xlsx": []byte("not a workbook")}))

	results, err := f.svc.ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %+v", results)
	}

	status := map[int]ProcessResult{}
	for _, r := range results {
		status[r.MessageID] = r
	}
	if r := status[invoiceMail.ID]; r.Status != internal.MessageProcessed || len(r.Runs) != 1 || r.Runs[0].Run.SourceName != "INV-1.xlsx" {
		t.Fatalf("invoice mail = %+v", r)
	}
	if r := status[chatter.ID]; r.Status != internal.MessageSkipped {
		t.Fatalf("chatter = %+v", r)
	}
	if r := status[bareBook.ID]; r.Status != internal.MessageProcessed || len(r.Runs) != 1 {
		t.Fatalf("workbook = %+v", r)
	}
	if r := status[broken.ID]; r.Status != internal.MessageFailed {
		t.Fatalf("broken = %+v", r)
	}

	row, err := f.db.GetMessageByProviderMessageID("test", "m4")
	if err != nil || row == nil || row.Error == "" {
		t.Fatalf("broken row = %+v %v", row, err)
	}

	again, err := f.svc.ProcessPending(context.Background(), 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("second pass = %+v %v", again, err)
	}
}
