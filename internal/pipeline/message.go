package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"watson/internal"
	"watson/internal/intake"
	"watson/internal/sheet"
)

type ProcessResult struct {
	MessageID int
	Status    string
	Runs      []RunResult
}

type document struct {
	name  string
	lines []internal.InvoiceLine
}

// ProcessMessage reconciles every invoice a stored message carries and sets
// the message status: processed, skipped when nothing looks like an
// invoice, or failed with the error.
func (s *ProcessingService) ProcessMessage(ctx context.Context, msg internal.MessageRow) (ProcessResult, error) {
	res := ProcessResult{MessageID: msg.ID}

	docs, err := s.documents(msg)
	if errors.Is(err, errNotInvoice) {
		res.Status = internal.MessageSkipped
		return res, s.db.UpdateMessageStatus(msg.ID, res.Status, "")
	}
	if err == nil && len(docs) == 0 {
		err = ErrNoInvoice
	}

	if err == nil {
		for _, doc := range docs {
			run, runErr := s.ReconcileLines(ctx, doc.name, msg.ID, doc.lines)
			if runErr != nil {
				err = fmt.Errorf("%s: %w", doc.name, runErr)
				break
			}
			res.Runs = append(res.Runs, run)
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			// leave the message pending for the next cycle
			return res, err
		}
		res.Status = internal.MessageFailed
		if updateErr := s.db.UpdateMessageStatus(msg.ID, res.Status, err.Error()); updateErr != nil {
			return res, updateErr
		}
		return res, err
	}

	res.Status = internal.MessageProcessed
	return res, s.db.UpdateMessageStatus(msg.ID, res.Status, "")
}

// ProcessPending works through fetched messages oldest first. A failed
// message does not stop the batch; its error is recorded on the row.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) ([]ProcessResult, error) {
	pending, err := s.db.ListMessagesByStatus(internal.MessageFetched, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProcessResult, 0, len(pending))
	for _, msg := range pending {
		res, err := s.ProcessMessage(ctx, msg)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err != nil && res.Status == "" {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

var errNotInvoice = errors.New("not an invoice")

func (s *ProcessingService) documents(msg internal.MessageRow) ([]document, error) {
	raw, err := os.ReadFile(msg.RawRef)
	if err != nil {
		return nil, err
	}

	if intake.IsWorkbook(msg.RawRef) {
		lines, err := sheet.ReadInvoice(bytes.NewReader(raw))
		if errors.Is(err, sheet.ErrNoHeader) {
			return nil, errNotInvoice
		}
		if err != nil {
			return nil, err
		}
		return []document{{name: firstNonEmpty(msg.Subject, msg.MessageID), lines: lines}}, nil
	}

	mail, err := intake.Extract(raw)
	if err != nil {
		return nil, err
	}
	if detect := intake.DetectInvoice(mail); !detect.IsInvoice {
		return nil, errNotInvoice
	}

	var docs []document
	for _, att := range mail.Attachments {
		lines, err := sheet.ReadInvoice(bytes.NewReader(att.Data))
		if errors.Is(err, sheet.ErrNoHeader) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", att.Name, err)
		}
		docs = append(docs, document{name: att.Name, lines: lines})
	}
	if lines := sheet.ParseInvoiceTables(mail.Tables); len(lines) > 0 {
		docs = append(docs, document{name: firstNonEmpty(mail.Subject, msg.Subject, "mail body") + " (body)", lines: lines})
	}
	return docs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
