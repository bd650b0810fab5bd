package pardot

import (
	"encoding/json"
	"fmt"

	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// BatchRequestFormat serialises a batch for the batchUpdate endpoint. The
// payload shape differs between API versions 3 and 4.
type BatchRequestFormat interface {
	// Version is the legacy API version the format targets.
	Version() int
	// Encode returns the JSON document sent in the "prospects" form field.
	Encode(b prospect.Batch) ([]byte, error)
}

// FormatForVersion returns the batch format for a legacy API version.
func FormatForVersion(version int) (BatchRequestFormat, error) {
	switch version {
	case 3:
		return V3Format{}, nil
	case 4:
		return V4Format{}, nil
	}
	return nil, fmt.Errorf("unsupported legacy API version %d", version)
}

// V4Format sends the prospects as a list, each entry carrying its own id:
//
//	{"prospects": [{"PD_Count": 2, ..., "id": "1001"}]}
type V4Format struct{}

// Version implements BatchRequestFormat.
func (V4Format) Version() int { return 4 }

// Encode implements BatchRequestFormat.
func (V4Format) Encode(b prospect.Batch) ([]byte, error) {
	list := make([]*prospect.FieldMap, len(b))
	copy(list, b)
	return json.Marshal(struct {
		Prospects []*prospect.FieldMap `json:"prospects"`
	}{list})
}

// V3Format keys the prospects by id; the id is not repeated in the values:
//
//	{"prospects": {"1001": {"PD_Count": 2, ...}}}
type V3Format struct{}

// Version implements BatchRequestFormat.
func (V3Format) Version() int { return 3 }

// Encode implements BatchRequestFormat. Keys keep batch order.
func (V3Format) Encode(b prospect.Batch) ([]byte, error) {
	keyed := prospect.NewFieldMap(len(b))
	for i, m := range b {
		id := m.ID()
		if id == "" {
			return nil, fmt.Errorf("batch entry %d has no prospect id", i)
		}
		if _, dup := keyed.Get(id); dup {
			return nil, fmt.Errorf("prospect %s appears twice in one batch", id)
		}
		values := prospect.NewFieldMap(m.Len())
		m.Range(func(k string, v interface{}) bool {
			if k != prospect.IDKey {
				values.Set(k, v)
			}
			return true
		})
		keyed.Set(id, values)
	}
	return json.Marshal(struct {
		Prospects *prospect.FieldMap `json:"prospects"`
	}{keyed})
}
