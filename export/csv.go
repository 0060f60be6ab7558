// Package export renders already-validated task records for bulk export.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/c360studio/taskintake/storage"
)

// createdAtLayout matches the listing format shown to users.
const createdAtLayout = "2006-01-02 15:04:05"

// utf8BOM makes spreadsheet applications decode Cyrillic field values
// correctly when the file is opened directly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV renders tasks as a UTF-8 CSV document with a header row. Absent
// optional fields render as empty strings. Record order is preserved.
func CSV(tasks []*storage.Task) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"ID", "Text", "Submitter", "Responsible", "Deadline", "Created At"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, t := range tasks {
		row := []string{
			fmt.Sprintf("%d", t.ID),
			t.Text,
			t.Submitter,
			orEmpty(t.Responsible),
			orEmpty(t.Deadline),
			t.CreatedAt.Format(createdAtLayout),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row for task %d: %w", t.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
