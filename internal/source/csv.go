package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/pathutil"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// CSVRecipients reads recipients from a CSV file with a header row.
type CSVRecipients struct {
	Path string
}

// CSVListings reads listings from a CSV file with a header row.
type CSVListings struct {
	Path string
}

// Recipients implements RecipientSource.
func (s CSVRecipients) Recipients(_ context.Context) ([]prospect.Recipient, error) {
	header, rows, err := readCSV(s.Path)
	if err != nil {
		return nil, err
	}
	if err := checkColumns("recipient", header, recipientColumns); err != nil {
		return nil, err
	}
	out := make([]prospect.Recipient, 0, len(rows))
	for i, r := range rows {
		rec, err := recipientFromRow(i+1, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	logger.Debug("recipients loaded", "source", "csv", "path", s.Path, "count", len(out))
	return out, nil
}

// Listings implements ListingSource.
func (s CSVListings) Listings(_ context.Context) ([]prospect.Listing, error) {
	header, rows, err := readCSV(s.Path)
	if err != nil {
		return nil, err
	}
	if err := checkColumns("listing", header, listingColumns); err != nil {
		return nil, err
	}
	out := make([]prospect.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, listingFromRow(r))
	}
	logger.Debug("listings loaded", "source", "csv", "path", s.Path, "count", len(out))
	return out, nil
}

func readCSV(path string) ([]string, []row, error) {
	if err := pathutil.ValidateFilePath(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, name string) ([]string, []row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%s: file is empty", name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: reading header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		rw := make(row, len(header))
		for i, col := range header {
			if i < len(record) {
				rw[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, rw)
	}
	return header, rows, nil
}
