package intake

import "strings"

type Detection struct {
	IsInvoice bool
	Score     float64
	Reason    string
}

var invoiceKeywords = []string{"invoice", "ใบแจ้งหนี้", "ใบกำกับ", "watson", "total cost", "qty"}

// DetectInvoice scores how likely a message is to carry a Watson invoice.
// Only messages with a workbook or a table are treated as invoices; the
// keywords raise the score for logging.
func DetectInvoice(msg Message) Detection {
	subject := strings.ToLower(msg.Subject)
	text := strings.ToLower(msg.Text)

	score := 0.0
	for _, kw := range invoiceKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}
	if len(msg.Attachments) > 0 {
		score += 0.5
	}
	if len(msg.Tables) > 0 {
		score += 0.5
	}
	if score > 1 {
		score = 1
	}

	if len(msg.Attachments) == 0 && len(msg.Tables) == 0 {
		return Detection{Score: score, Reason: "no workbook or table"}
	}
	return Detection{IsInvoice: true, Score: score, Reason: "rules_positive"}
}
