package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"watson/internal"
	"watson/internal/util"
)

// ErrNoPriceList means no price list has been imported yet.
var ErrNoPriceList = errors.New("storage: no price list imported")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS price_imports (
  id TEXT PRIMARY KEY,
  sourceName TEXT NOT NULL,
  rowCount INTEGER NOT NULL,
  issueCount INTEGER NOT NULL,
  issuesJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_list_rows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  importId TEXT NOT NULL,
  rowNo INTEGER NOT NULL,
  itemCode TEXT NOT NULL,
  prodCode TEXT,
  prodName TEXT,
  startDate TEXT,
  endDate TEXT,
  standardPrice TEXT NOT NULL,
  commissionPrice TEXT,
  extVatPrice TEXT NOT NULL,
  incVatPrice TEXT NOT NULL,
  invoice62IncV TEXT NOT NULL,
  remark TEXT,
  FOREIGN KEY(importId) REFERENCES price_imports(id)
);
CREATE INDEX IF NOT EXISTS idx_price_list_rows_itemCode ON price_list_rows(itemCode);

CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  lastError TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  sourceName TEXT NOT NULL,
  messageId INTEGER,
  totalItems INTEGER NOT NULL,
  acceptableCount INTEGER NOT NULL,
  unacceptableCount INTEGER NOT NULL,
  averageConfidence REAL NOT NULL,
  totalDiff TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(messageId) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS run_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  position INTEGER NOT NULL,
  rowNo INTEGER NOT NULL,
  itemCode TEXT NOT NULL,
  status TEXT NOT NULL,
  confidence REAL NOT NULL,
  rowJson TEXT NOT NULL,
  UNIQUE(runId, position),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplacePriceList swaps the stored price list for rows in one transaction
// and records the import with its row issues.
func (d *DB) ReplacePriceList(sourceName string, rows []internal.PriceListRow, issues []internal.RowIssue) (internal.PriceImport, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return internal.PriceImport{}, err
	}
	defer func() { _ = tx.Rollback() }()

	imp := internal.PriceImport{
		ID:         uuid.NewString(),
		SourceName: sourceName,
		RowCount:   len(rows),
		IssueCount: len(issues),
	}
	issuesJSON, _ := json.Marshal(issues)
	if _, err := tx.Exec(`INSERT INTO price_imports (id, sourceName, rowCount, issueCount, issuesJson) VALUES (?, ?, ?, ?, ?)`,
		imp.ID, imp.SourceName, imp.RowCount, imp.IssueCount, string(issuesJSON)); err != nil {
		return internal.PriceImport{}, err
	}
	if _, err := tx.Exec(`DELETE FROM price_list_rows`); err != nil {
		return internal.PriceImport{}, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO price_list_rows (
  importId, rowNo, itemCode, prodCode, prodName, startDate, endDate,
  standardPrice, commissionPrice, extVatPrice, incVatPrice, invoice62IncV, remark
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return internal.PriceImport{}, err
	}
	defer stmt.Close()

	for _, r := range rows {
		var commission *string
		if r.CommissionPrice.Valid {
			commission = util.StringPtr(r.CommissionPrice.Decimal.String())
		}
		if _, err := stmt.Exec(
			imp.ID, r.RowNo, r.ItemCode, r.ProdCode, r.ProdName, dateValue(r.StartDate), dateValue(r.EndDate),
			r.StandardPrice.String(), commission, r.ExtVatPrice.String(), r.IncVatPrice.String(), r.Invoice62IncV.String(), r.Remark,
		); err != nil {
			return internal.PriceImport{}, fmt.Errorf("row %d: %w", r.RowNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.PriceImport{}, err
	}
	return d.getPriceImport(imp.ID)
}

func (d *DB) ListPriceListRows() ([]internal.PriceListRow, error) {
	rows, err := d.conn.Query(`
SELECT rowNo, itemCode, prodCode, prodName, startDate, endDate,
       standardPrice, commissionPrice, extVatPrice, incVatPrice, invoice62IncV, remark
FROM price_list_rows ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PriceListRow
	for rows.Next() {
		var r internal.PriceListRow
		var prodCode, prodName, startDate, endDate, commission, remark sql.NullString
		var standard, extVat, incVat, inv62 string
		if err := rows.Scan(
			&r.RowNo, &r.ItemCode, &prodCode, &prodName, &startDate, &endDate,
			&standard, &commission, &extVat, &incVat, &inv62, &remark,
		); err != nil {
			return nil, err
		}
		r.ProdCode = prodCode.String
		r.ProdName = prodName.String
		r.Remark = remark.String
		r.StartDate = parseDateValue(startDate)
		r.EndDate = parseDateValue(endDate)
		r.StandardPrice = decimalValue(standard)
		r.ExtVatPrice = decimalValue(extVat)
		r.IncVatPrice = decimalValue(incVat)
		r.Invoice62IncV = decimalValue(inv62)
		if commission.Valid {
			r.CommissionPrice = decimal.NewNullDecimal(decimalValue(commission.String))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoPriceList
	}
	return out, nil
}

func (d *DB) getPriceImport(id string) (internal.PriceImport, error) {
	var imp internal.PriceImport
	err := d.conn.QueryRow(`SELECT id, sourceName, rowCount, issueCount, createdAt FROM price_imports WHERE id = ?`, id).
		Scan(&imp.ID, &imp.SourceName, &imp.RowCount, &imp.IssueCount, &imp.CreatedAt)
	return imp, err
}

// LatestPriceImport returns nil when nothing has been imported.
func (d *DB) LatestPriceImport() (*internal.PriceImport, error) {
	var imp internal.PriceImport
	err := d.conn.QueryRow(`
SELECT id, sourceName, rowCount, issueCount, createdAt
FROM price_imports ORDER BY createdAt DESC, rowid DESC LIMIT 1`).
		Scan(&imp.ID, &imp.SourceName, &imp.RowCount, &imp.IssueCount, &imp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

func (d *DB) PriceImportIssues(id string) ([]internal.RowIssue, error) {
	var issuesJSON string
	if err := d.conn.QueryRow(`SELECT issuesJson FROM price_imports WHERE id = ?`, id).Scan(&issuesJSON); err != nil {
		return nil, err
	}
	var issues []internal.RowIssue
	if err := json.Unmarshal([]byte(issuesJSON), &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// InsertRun stores a reconciliation run and its per-line rows. A blank
// run.ID gets a fresh uuid; messageID 0 means the run did not come from mail.
func (d *DB) InsertRun(run internal.RunRow, messageID int, lines []internal.ResultExportRow) (internal.RunRow, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return internal.RunRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var msgRef *int
	if messageID > 0 {
		msgRef = &messageID
	}
	if _, err := tx.Exec(`
INSERT INTO runs (id, sourceName, messageId, totalItems, acceptableCount, unacceptableCount, averageConfidence, totalDiff)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.SourceName, msgRef, run.TotalItems, run.AcceptableCount, run.UnacceptableCount, run.AverageConfidence, run.TotalDiff); err != nil {
		return internal.RunRow{}, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO run_lines (runId, position, rowNo, itemCode, status, confidence, rowJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return internal.RunRow{}, err
	}
	defer stmt.Close()

	for i, line := range lines {
		rowJSON, err := json.Marshal(line)
		if err != nil {
			return internal.RunRow{}, err
		}
		if _, err := stmt.Exec(run.ID, i, line.RowNo, line.ItemCode, line.Status, line.Confidence, string(rowJSON)); err != nil {
			return internal.RunRow{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.RunRow{}, err
	}

	stored, err := d.GetRun(run.ID)
	if err != nil {
		return internal.RunRow{}, err
	}
	if stored == nil {
		return internal.RunRow{}, errors.New("failed to insert run")
	}
	return *stored, nil
}

func (d *DB) GetRun(id string) (*internal.RunRow, error) {
	var row internal.RunRow
	err := d.conn.QueryRow(`
SELECT id, sourceName, totalItems, acceptableCount, unacceptableCount, averageConfidence, totalDiff, createdAt
FROM runs WHERE id = ?
`, id).Scan(&row.ID, &row.SourceName, &row.TotalItems, &row.AcceptableCount, &row.UnacceptableCount, &row.AverageConfidence, &row.TotalDiff, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, sourceName, totalItems, acceptableCount, unacceptableCount, averageConfidence, totalDiff, createdAt
FROM runs ORDER BY createdAt DESC, rowid DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var row internal.RunRow
		if err := rows.Scan(&row.ID, &row.SourceName, &row.TotalItems, &row.AcceptableCount, &row.UnacceptableCount, &row.AverageConfidence, &row.TotalDiff, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetRunExportRows returns a run's lines in insertion order.
func (d *DB) GetRunExportRows(runID string) ([]internal.ResultExportRow, error) {
	rows, err := d.conn.Query(`SELECT rowJson FROM run_lines WHERE runId = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ResultExportRow
	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, err
		}
		var row internal.ResultExportRow
		if err := json.Unmarshal([]byte(rowJSON), &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RunStatusCounts counts a run's lines per status.
func (d *DB) RunStatusCounts(runID string) (map[string]int, error) {
	rows, err := d.conn.Query(`SELECT status, COUNT(*) FROM run_lines WHERE runId = ? GROUP BY status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (d *DB) UpsertMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MessageRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO messages (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MessageRow{}, err
	}

	row, err := d.GetMessageByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MessageRow{}, err
	}
	if row == nil {
		return internal.MessageRow{}, errors.New("failed to upsert message")
	}
	return *row, nil
}

const messageColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, lastError`

func scanMessage(scan func(...any) error) (internal.MessageRow, error) {
	var row internal.MessageRow
	var subject, sender, receivedAt sql.NullString
	err := scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &row.Status, &row.RawRef, &row.Error)
	row.Subject = subject.String
	row.Sender = sender.String
	row.ReceivedAt = receivedAt.String
	return row, err
}

func (d *DB) GetMessageByProviderMessageID(provider, messageID string) (*internal.MessageRow, error) {
	row, err := scanMessage(d.conn.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListMessagesByStatus(status string, limit int) ([]internal.MessageRow, error) {
	rows, err := d.conn.Query(`SELECT `+messageColumns+` FROM messages WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MessageRow
	for rows.Next() {
		row, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMessageStatus(id int, status, errMsg string) error {
	_, err := d.conn.Exec(`UPDATE messages SET status = ?, lastError = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, errMsg, id)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func dateValue(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return util.StringPtr(util.FormatDate(*t))
}

func parseDateValue(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v.String)
	if err != nil {
		return nil
	}
	return &t
}

func decimalValue(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
