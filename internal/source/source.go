// Package source loads recipients and listings from CSV files or a
// PostgreSQL database and draws the listings shown to each recipient.
package source

import (
	"context"
	"strconv"
	"strings"

	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Column names shared by the CSV headers and the database query results.
const (
	ColID         = "id"
	ColProspectID = "prospectId"
	ColFirstName  = "firstName"
	ColLastName   = "lastName"
	ColEmail      = "email"
	ColAgent      = "agent"

	ColPrice       = "price"
	ColBedrooms    = "bedrooms"
	ColBathrooms   = "bathrooms"
	ColSqft        = "sqft"
	ColFullAddress = "fullAddress"
	ColListingURL  = "listing_url"
	ColImageURL    = "image_url"
)

var (
	recipientColumns = []string{ColID, ColFirstName, ColLastName, ColAgent}
	listingColumns   = []string{ColPrice, ColBedrooms, ColBathrooms, ColSqft, ColFullAddress, ColListingURL, ColImageURL}
)

// RecipientSource supplies the recipients of a run.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]prospect.Recipient, error)
}

// ListingSource supplies the pool listings are drawn from.
type ListingSource interface {
	Listings(ctx context.Context) ([]prospect.Listing, error)
}

// row is one record keyed by column name. A missing key means the column is
// absent, not empty.
type row map[string]string

func checkColumns(record string, columns []string, required []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[strings.TrimSpace(c)] = true
	}
	for _, c := range required {
		if !present[c] {
			return errhandling.NewMalformedRecord(record, "header", c)
		}
	}
	return nil
}

// recipientFromRow builds a recipient. n is the 1-based record number used in
// errors. The prospect id falls back to id when the column is absent or blank.
func recipientFromRow(n int, r row) (prospect.Recipient, error) {
	ref := "row " + strconv.Itoa(n)
	if r[ColID] == "" {
		return prospect.Recipient{}, errhandling.NewMalformedRecord("recipient", ref, ColID)
	}
	if r[ColAgent] == "" {
		return prospect.Recipient{}, errhandling.NewMalformedRecord("recipient", ref, ColAgent)
	}
	rec := prospect.Recipient{
		ID:         r[ColID],
		ProspectID: r[ColProspectID],
		FirstName:  r[ColFirstName],
		LastName:   r[ColLastName],
		Email:      r[ColEmail],
		Agent:      r[ColAgent],
	}
	if rec.ProspectID == "" {
		rec.ProspectID = rec.ID
	}
	return rec, nil
}

// listingFromRow builds a listing. Blank attributes are kept; the projector
// rejects them when the listing is actually shown.
func listingFromRow(r row) prospect.Listing {
	return prospect.Listing{
		Price:       r[ColPrice],
		Bedrooms:    r[ColBedrooms],
		Bathrooms:   r[ColBathrooms],
		Sqft:        r[ColSqft],
		FullAddress: r[ColFullAddress],
		ListingURL:  r[ColListingURL],
		ImageURL:    r[ColImageURL],
	}
}
