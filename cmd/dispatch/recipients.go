package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/resend-dispatch/campaign/internal/domain"
)

// loadRecipients reads a CSV recipients source. The file must have a header
// row; an "email" column is required, and every other column becomes a
// per-recipient template variable. This parser is a thin, swappable stand-in;
// the core itself only depends on a []domain.Recipient slice.
//
// Every email is normalized and then checked with domain.ValidEmail before it
// is admitted: rows that fail are dropped rather than handed to the
// Scheduler, and invalid is the count of rows dropped this way.
func loadRecipients(path string) (recipients []domain.Recipient, invalid int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open recipients file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read recipients header: %w", err)
	}

	emailCol := -1
	nameCol := -1
	for i, col := range header {
		switch col {
		case "email":
			emailCol = i
		case "name":
			nameCol = i
		}
	}
	if emailCol == -1 {
		return nil, 0, fmt.Errorf("recipients file is missing an \"email\" column")
	}

	var out []domain.Recipient
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read recipients row: %w", err)
		}

		email := domain.NormalizeEmail(row[emailCol])
		if !domain.ValidEmail(email) {
			invalid++
			continue
		}

		rec := domain.Recipient{
			Email: email,
			Vars:  make(map[string]string, len(header)),
		}
		if nameCol != -1 && nameCol < len(row) {
			rec.Name = row[nameCol]
		}
		for i, col := range header {
			if i == emailCol || i >= len(row) {
				continue
			}
			rec.Vars[col] = row[i]
		}
		out = append(out, rec)
	}
	return out, invalid, nil
}
