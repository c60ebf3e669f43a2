// Package intake turns a raw mail message into the invoice material it
// carries: workbook attachments and tables pasted into the HTML body.
package intake

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"watson/internal/util"
)

type Attachment struct {
	Name string
	Data []byte
}

type Message struct {
	Subject     string
	From        string
	Text        string
	Attachments []Attachment
	// Tables holds every HTML <table> with at least two rows as a cell grid.
	Tables [][][]string
	// Skipped lists attachment names that are not workbooks.
	Skipped []string
}

func Extract(raw []byte) (Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		Subject: env.GetHeader("Subject"),
		From:    env.GetHeader("From"),
		Text:    env.Text,
	}
	if env.HTML != "" {
		msg.Tables = parseHTMLTables(env.HTML)
	}

	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.Inlines...)
	for _, att := range parts {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		if !IsWorkbook(name) {
			msg.Skipped = append(msg.Skipped, name)
			continue
		}
		msg.Attachments = append(msg.Attachments, Attachment{Name: name, Data: att.Content})
	}
	return msg, nil
}

// IsWorkbook reports whether name looks like an Excel 2007+ workbook.
func IsWorkbook(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

func parseHTMLTables(html string) [][][]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out [][][]string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		var grid [][]string
		rows.Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(strings.ReplaceAll(cell.Text(), "\u00A0", " ")))
			})
			grid = append(grid, cells)
		})
		out = append(out, grid)
	})
	return out
}
