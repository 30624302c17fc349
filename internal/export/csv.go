// Package export renders feedback records as a spreadsheet friendly CSV document.
package export

import (
	"bytes"
	"strings"

	"github.com/patternguard/console/internal/models"
)

// DefaultFileName is the name the admin export is saved under.
const DefaultFileName = "feedback.csv"

// ContentType describes the document produced by ToCSV.
const ContentType = "text/csv;charset=utf-8"

// BOM is the UTF-8 byte order mark spreadsheet tools use to detect the encoding.
const BOM = "\uFEFF"

// Header is the fixed column order.
var Header = []string{"ID", "Message", "Issue", "URL", "Mail", "Date"}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// EscapeCell quotes a single value. Line breaks collapse to LF, quotes are
// doubled, and the result is always wrapped in quotes.
func EscapeCell(value string) string {
	normalized := lineBreaks.Replace(value)
	return `"` + strings.ReplaceAll(normalized, `"`, `""`) + `"`
}

// ToCSV renders records in order. Rows are separated by CRLF and the
// document starts with a BOM. The output depends only on the input.
func ToCSV(records []models.FeedbackRecord) []byte {
	var buf bytes.Buffer
	buf.WriteString(BOM)

	writeRow(&buf, Header)
	for _, r := range records {
		buf.WriteString("\r\n")
		writeRow(&buf, []string{
			r.ID.String(),
			r.Message.String(),
			r.Issue.String(),
			r.URL.String(),
			r.Mail.String(),
			r.Date.String(),
		})
	}

	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(EscapeCell(cell))
	}
}
