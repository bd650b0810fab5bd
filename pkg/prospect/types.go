// Package prospect provides the public record types shared by the prospectsync
// runtime: recipients, listings, the per-prospect field map and run results.
// This package is intended to be importable by projects that feed their own
// recipient data into the sync workflows.
package prospect

import "time"

// IDKey is the reserved FieldMap key holding the Pardot prospect id.
// Clearing a FieldMap never touches it.
const IDKey = "id"

// Recipient is a person who receives the weekly listings email.
type Recipient struct {
	// ID is the identifier in the recipient source
	ID string `json:"id"`

	// ProspectID is the Pardot prospect id the recipient maps to
	ProspectID string `json:"prospectId"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`

	// Agent is the name of the real estate agent shown in the email
	Agent string `json:"agent"`
}

// FullName returns "First Last" with surrounding blanks trimmed.
func (r Recipient) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// Listing is a property for sale. Numeric attributes are kept as the strings
// the source provided them in; Pardot receives them verbatim.
type Listing struct {
	Price       string `json:"price"`
	Bedrooms    string `json:"bedrooms"`
	Bathrooms   string `json:"bathrooms"`
	Sqft        string `json:"sqft"`
	FullAddress string `json:"fullAddress"`
	ListingURL  string `json:"listing_url"`
	ImageURL    string `json:"image_url"`
}

// Batch is an ordered group of FieldMaps submitted in one remote call.
type Batch []*FieldMap

// RunResult represents the outcome of one CLI workflow run.
type RunResult struct {
	// RunID uniquely identifies the run in logs and metrics
	RunID string `json:"runId"`

	// Command is the workflow that ran (e.g. "send list")
	Command string `json:"command"`

	// Status is "success" or "error"
	Status string `json:"status"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	RecipientsProcessed int `json:"recipientsProcessed"`
	ProspectsUpdated    int `json:"prospectsUpdated"`
	ProspectsCleared    int `json:"prospectsCleared"`
	BatchesSubmitted    int `json:"batchesSubmitted"`
	EmailsSent          int `json:"emailsSent"`
	FieldsCreated       int `json:"fieldsCreated"`
	FieldsDeleted       int `json:"fieldsDeleted"`

	// BatchSizes lists the size of every submitted update batch in order
	BatchSizes []int `json:"batchSizes,omitempty"`

	// Error contains error details if the run failed
	Error *RunError `json:"error,omitempty"`

	// DryRunPreview lists the requests that would have been sent (dry-run only)
	DryRunPreview []RequestPreview `json:"dryRunPreview,omitempty"`
}

// RunError contains details about a run failure.
type RunError struct {
	// Kind is the failure kind (auth, remote_update, malformed_record, ...)
	Kind string `json:"kind"`

	// Site is the call site that failed (e.g. "batch_update")
	Site string `json:"site"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// ExitCode is the process exit code for this failure
	ExitCode int `json:"exitCode"`
}

// RequestPreview contains the preview of an HTTP request that would be sent.
// Used in dry-run mode to show what would be sent without actually sending.
type RequestPreview struct {
	// Operation names the remote call (update_prospect, batch_update, ...)
	Operation string `json:"operation"`

	// Endpoint is the resolved URL including query params
	Endpoint string `json:"endpoint"`

	// Method is the HTTP method
	Method string `json:"method"`

	// Headers contains request headers with the bearer token masked
	Headers map[string]string `json:"headers"`

	// Form holds the form-encoded body fields
	Form map[string][]string `json:"form,omitempty"`

	// RecordCount is the number of prospects included in this request
	RecordCount int `json:"recordCount"`
}
