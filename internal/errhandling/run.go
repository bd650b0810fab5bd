package errhandling

import (
	"errors"
	"fmt"
)

// Kind is the failure taxonomy reported to the operator.
type Kind string

// Failure kinds.
const (
	// KindAuth is a non-2xx answer from the identity provider.
	KindAuth Kind = "auth"
	// KindRemoteUpdate is a non-2xx or API-level failure from a Pardot endpoint.
	KindRemoteUpdate Kind = "remote_update"
	// KindMalformedRecord is a recipient or listing missing a required attribute.
	KindMalformedRecord Kind = "malformed_record"
	// KindRegistry is a custom field registry precondition or I/O failure.
	KindRegistry Kind = "registry"
	// KindConfig is an unparseable or invalid configuration.
	KindConfig Kind = "config"
	// KindInternal is anything not covered above.
	KindInternal Kind = "internal"
)

// Site names the workflow call site that failed.
type Site string

// Call sites. Each maps to its own exit code.
const (
	SiteAuthenticate   Site = "authenticate"
	SiteCreateField    Site = "create_custom_field"
	SiteDeleteField    Site = "delete_custom_field"
	SiteUpdateProspect Site = "update_prospect"
	SiteBatchUpdate    Site = "batch_update"
	SiteRegistryExists Site = "registry_exists"
	SiteSendHTML       Site = "send_html"
	SiteSendList       Site = "send_list"
	SiteSendTemplate   Site = "send_template"
	SiteLoadRecords    Site = "load_records"
	SiteConfigParse    Site = "config_parse"
	SiteConfigValidate Site = "config_validate"
	SiteRegistryIO     Site = "registry_io"
	SiteRender         Site = "render_email"
	SiteUnknown        Site = "unknown"
)

// Exit codes. The numbering keeps the historical per-script codes so existing
// operator runbooks still apply.
const (
	ExitSuccess          = 0
	ExitAuth             = 1
	ExitCreateField      = 2
	ExitDeleteField      = 3
	ExitUpdateProspect   = 4
	ExitBatchUpdate      = 5
	ExitRegistryExists   = 10
	ExitSendHTML         = 20
	ExitSendList         = 30
	ExitSendTemplate     = 40
	ExitMalformedRecord  = 50
	ExitConfigParse      = 60
	ExitConfigValidation = 61
	ExitRegistryIO       = 62
	ExitRender           = 63
	ExitRuntime          = 70
)

var siteExitCodes = map[Site]int{
	SiteAuthenticate:   ExitAuth,
	SiteCreateField:    ExitCreateField,
	SiteDeleteField:    ExitDeleteField,
	SiteUpdateProspect: ExitUpdateProspect,
	SiteBatchUpdate:    ExitBatchUpdate,
	SiteRegistryExists: ExitRegistryExists,
	SiteSendHTML:       ExitSendHTML,
	SiteSendList:       ExitSendList,
	SiteSendTemplate:   ExitSendTemplate,
	SiteLoadRecords:    ExitMalformedRecord,
	SiteConfigParse:    ExitConfigParse,
	SiteConfigValidate: ExitConfigValidation,
	SiteRegistryIO:     ExitRegistryIO,
	SiteRender:         ExitRender,
}

// ExitCode returns the process exit code for the site.
func (s Site) ExitCode() int {
	if code, ok := siteExitCodes[s]; ok {
		return code
	}
	return ExitRuntime
}

// RunError is a fatal workflow failure bound to its call site.
type RunError struct {
	Kind Kind
	Site Site
	Err  error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Site, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for the failing site. A malformed record
// always reports ExitMalformedRecord, whatever site noticed it.
func (e *RunError) ExitCode() int {
	if e.Kind == KindMalformedRecord {
		return ExitMalformedRecord
	}
	return e.Site.ExitCode()
}

// Fail binds err to a call site. The kind is inferred from the chain: a
// MalformedRecordError stays malformed_record, an authentication site is auth,
// everything else from a remote call is remote_update. An existing RunError
// is returned unchanged so the innermost site wins.
func Fail(site Site, err error) error {
	if err == nil {
		return nil
	}
	var existing *RunError
	if errors.As(err, &existing) {
		return err
	}
	return &RunError{Kind: inferKind(site, err), Site: site, Err: err}
}

func inferKind(site Site, err error) Kind {
	var malformed *MalformedRecordError
	if errors.As(err, &malformed) {
		return KindMalformedRecord
	}
	switch site {
	case SiteAuthenticate:
		return KindAuth
	case SiteCreateField, SiteDeleteField, SiteUpdateProspect, SiteBatchUpdate,
		SiteSendHTML, SiteSendList, SiteSendTemplate:
		return KindRemoteUpdate
	case SiteRegistryExists, SiteRegistryIO:
		return KindRegistry
	case SiteConfigParse, SiteConfigValidate:
		return KindConfig
	default:
		return KindInternal
	}
}

// ExitCodeFor maps any error to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.ExitCode()
	}
	var malformed *MalformedRecordError
	if errors.As(err, &malformed) {
		return ExitMalformedRecord
	}
	return ExitRuntime
}

// KindOf returns the failure kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	var malformed *MalformedRecordError
	if errors.As(err, &malformed) {
		return KindMalformedRecord
	}
	return KindInternal
}

// SiteOf returns the call site carried by err, or SiteUnknown.
func SiteOf(err error) Site {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Site
	}
	return SiteUnknown
}

// MalformedRecordError reports a recipient or listing missing a required
// attribute.
type MalformedRecordError struct {
	// Record is the record type ("recipient" or "listing")
	Record string
	// Ref identifies the record (row number, listing index, recipient id)
	Ref string
	// Attribute is the missing attribute name
	Attribute string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s %s: missing attribute %q", e.Record, e.Ref, e.Attribute)
}

// NewMalformedRecord creates a MalformedRecordError.
func NewMalformedRecord(record, ref, attribute string) *MalformedRecordError {
	return &MalformedRecordError{Record: record, Ref: ref, Attribute: attribute}
}
