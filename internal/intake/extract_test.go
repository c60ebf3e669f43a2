package intake

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "Item Code")
	_ = f.SetCellValue("Sheet1", "A2", "100200")
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func mkEML(html string, attachments map[string][]byte) []byte {
	var b strings.Builder
	b.WriteString("From: Shop <shop@example.com>\r\n")
	b.WriteString("To: ap@example.com\r\n")
	b.WriteString("Subject: Watson invoice INV-1\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n\r\n")
	b.WriteString("--XYZ\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html + "\r\n")
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

func TestExtract(t *testing.T) {
	workbook := mkXLSX(t)
	html := `<p>see below</p><table><tr><th>Item Code</th><th>Qty</th></tr><tr><td> 100200 </td><td>10</td></tr></table><table><tr><td>only one row</td></tr></table>`
	raw := mkEML(html, map[string][]byte{"INV-1.xlsx": workbook, "logo.png": []byte("png")})

	msg, err := Extract(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "Watson invoice INV-1" || !strings.Contains(msg.From, "shop@example.com") {
		t.Fatalf("headers = %q %q", msg.Subject, msg.From)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Name != "INV-1.xlsx" || !bytes.Equal(msg.Attachments[0].Data, workbook) {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	if len(msg.Skipped) != 1 || msg.Skipped[0] != "logo.png" {
		t.Fatalf("skipped = %v", msg.Skipped)
	}
	if len(msg.Tables) != 1 || len(msg.Tables[0]) != 2 || msg.Tables[0][1][0] != "100200" {
		t.Fatalf("tables = %v", msg.Tables)
	}

	if d := DetectInvoice(msg); !d.IsInvoice || d.Score < 0.5 {
		t.Fatalf("detect = %+v", d)
	}
}

func TestDetectInvoiceWithoutMaterial(t *testing.T) {
	d := DetectInvoice(Message{Subject: "Invoice question", Text: "what is the qty?"})
	if d.IsInvoice || d.Score == 0 {
		t.Fatalf("detect = %+v", d)
	}
}

func TestIsWorkbook(t *testing.T) {
	cases := map[string]bool{"a.xlsx": true, "B.XLSM": true, "c.xls": false, "d.pdf": false}
	for name, want := range cases {
		if got := IsWorkbook(name); got != want {
			t.Fatalf("IsWorkbook(%q) = %v", name, got)
		}
	}
}
