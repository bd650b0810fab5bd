package fields

import (
	"strconv"

	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Project flattens a recipient and its listings onto prospect fields.
//
// Count and AgentName are always emitted first, even for zero listings. Then
// for listing i (1-based) the seven line-item fields follow in
// LineItemKinds order. The result has no "id" entry.
func Project(recipient prospect.Recipient, listings []prospect.Listing, format *Format) (*prospect.FieldMap, error) {
	m := prospect.NewFieldMap(2 + len(listings)*len(LineItemKinds()) + 1)

	if err := set(m, format, KindCount, 0, len(listings)); err != nil {
		return nil, err
	}
	if err := set(m, format, KindAgentName, 0, recipient.Agent); err != nil {
		return nil, err
	}

	for i, listing := range listings {
		n := i + 1
		for _, kind := range LineItemKinds() {
			value, attr := listingValue(listing, kind)
			if value == "" {
				return nil, errhandling.NewMalformedRecord("listing", strconv.Itoa(n), attr)
			}
			if err := set(m, format, kind, n, value); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ProjectForProspect is Project with the recipient's prospect id attached
// under prospect.IDKey.
func ProjectForProspect(recipient prospect.Recipient, listings []prospect.Listing, format *Format) (*prospect.FieldMap, error) {
	if recipient.ProspectID == "" {
		return nil, errhandling.NewMalformedRecord("recipient", recipient.ID, "prospectId")
	}
	m, err := Project(recipient, listings, format)
	if err != nil {
		return nil, err
	}
	m.SetID(recipient.ProspectID)
	return m, nil
}

func set(m *prospect.FieldMap, format *Format, kind FieldKind, index int, value interface{}) error {
	name, err := format.Name(kind, index)
	if err != nil {
		return err
	}
	m.Set(name, value)
	return nil
}

// listingValue returns the listing attribute for kind and its source column
// name.
func listingValue(l prospect.Listing, kind FieldKind) (value, attribute string) {
	switch kind {
	case KindPrice:
		return l.Price, "price"
	case KindBedrooms:
		return l.Bedrooms, "bedrooms"
	case KindBathrooms:
		return l.Bathrooms, "bathrooms"
	case KindSqft:
		return l.Sqft, "sqft"
	case KindAddress:
		return l.FullAddress, "fullAddress"
	case KindListingURL:
		return l.ListingURL, "listing_url"
	case KindImageURL:
		return l.ImageURL, "image_url"
	}
	return "", kind.String()
}
