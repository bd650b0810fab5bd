package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pardreamin/prospectsync/internal/database"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Querier is the subset of *sql.DB the database source needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Database reads recipients and listings with two SQL queries. Result column
// names must match the CSV headers.
type Database struct {
	db              Querier
	recipientsQuery string
	listingsQuery   string
	timeout         time.Duration
}

// NewDatabase creates a database source.
func NewDatabase(db Querier, recipientsQuery, listingsQuery string, timeout time.Duration) *Database {
	return &Database{
		db:              db,
		recipientsQuery: recipientsQuery,
		listingsQuery:   listingsQuery,
		timeout:         timeout,
	}
}

// Recipients implements RecipientSource.
func (d *Database) Recipients(ctx context.Context) ([]prospect.Recipient, error) {
	columns, rows, err := d.query(ctx, "recipients", d.recipientsQuery)
	if err != nil {
		return nil, err
	}
	if err := checkColumns("recipient", columns, recipientColumns); err != nil {
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
	return out, nil
}

// Listings implements ListingSource.
func (d *Database) Listings(ctx context.Context) ([]prospect.Listing, error) {
	columns, rows, err := d.query(ctx, "listings", d.listingsQuery)
	if err != nil {
		return nil, err
	}
	if err := checkColumns("listing", columns, listingColumns); err != nil {
		return nil, err
	}
	out := make([]prospect.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, listingFromRow(r))
	}
	return out, nil
}

func (d *Database) query(ctx context.Context, operation, query string) ([]string, []row, error) {
	start := time.Now()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, database.ClassifyDatabaseError(err, operation, query)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, records, err := rowsToRecords(rows)
	if err != nil {
		return nil, nil, database.ClassifyDatabaseError(err, operation, query)
	}
	logger.Debug("database query completed",
		"operation", operation,
		"record_count", len(records),
		"duration", time.Since(start),
	)
	return columns, records, nil
}

// rowsToRecords converts sql.Rows to string-valued rows. NULL becomes the
// empty string.
func rowsToRecords(rows *sql.Rows) ([]string, []row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("getting column names: %w", err)
	}

	var records []row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, fmt.Errorf("scanning row: %w", err)
		}

		record := make(row, len(columns))
		for i, col := range columns {
			record[col] = convertDatabaseValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	return columns, records, nil
}

func convertDatabaseValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return prospect.ValueToString(v)
	}
}
