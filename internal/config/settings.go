package config

import (
	"time"

	"github.com/pardreamin/prospectsync/internal/fields"
)

// Default values applied by ConvertToSettings when a key is absent.
const (
	DefaultConfigPath       = "config/app.yaml"
	DefaultRegistryPath     = "config/fields.csv"
	DefaultRecipientsFile   = "data/recipients.csv"
	DefaultListingsFile     = "data/listings.csv"
	DefaultLegacyAPIVersion = 4
	DefaultMaxBatchSize     = 50
	DefaultListingCountMin  = 1
	DefaultListingCountMax  = 5
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultDatabaseTimeout  = 30 * time.Second
	DefaultGrantType        = GrantPassword

	DefaultEmailName   = "ParDreamin Realty Weekly Email"
	DefaultSubject     = "Here are {{count}} Listings Waiting for You!"
	DefaultFromEmail   = "realty@pardreamin.com"
	DefaultFromName    = "ParDreamin Realty"
	DefaultTextContent = "This email is best viewed in an HTML capable email client. {{EmailPreferenceCenter}}"
)

// Salesforce OAuth grant types.
const (
	GrantPassword  = "password"
	GrantJWTBearer = "jwt-bearer"
)

// Record source backends.
const (
	SourceCSV      = "csv"
	SourceDatabase = "database"
)

// Settings is the typed, validated configuration of one run. It is built once
// by Load and never modified afterwards.
type Settings struct {
	Salesforce  SalesforceSettings
	Pardot      PardotSettings
	FieldNaming FieldNamingSettings
	Data        DataSettings
	Recipients  RecipientSettings
	Send        SendSettings
}

// SalesforceSettings configures the identity provider.
type SalesforceSettings struct {
	// URL is the login host, e.g. https://login.salesforce.com
	URL            string
	GrantType      string
	ClientID       string
	ClientSecret   string
	Username       string
	Password       string
	SecurityToken  string
	PrivateKeyFile string
	Timeout        time.Duration
}

// PardotSettings configures the Pardot API client and the send targets.
type PardotSettings struct {
	URL              string
	BusinessUnitID   string
	LegacyAPIVersion int
	MaxBatchSize     int
	CampaignID       string
	EmailTemplateID  string
	SendingListID    string
	Timeout          time.Duration
}

// FieldNamingSettings holds the parsed field name templates and the listing
// count range.
type FieldNamingSettings struct {
	APIFormat       *fields.Format
	HumanFormat     *fields.Format
	ListingCountMin int
	ListingCountMax int
	RegistryPath    string
}

// DataSettings selects where recipients and listings come from.
type DataSettings struct {
	Source         string
	RecipientsFile string
	ListingsFile   string
	Database       DatabaseSettings
}

// DatabaseSettings configures the PostgreSQL record source.
type DatabaseSettings struct {
	ConnectionString    string
	ConnectionStringRef string
	RecipientsQuery     string
	ListingsQuery       string
	Timeout             time.Duration
}

// RecipientSettings narrows the loaded recipients.
type RecipientSettings struct {
	// Filter is an expression evaluated per recipient; empty keeps everyone
	Filter string
}

// SendSettings holds the sender details of complete-HTML emails.
type SendSettings struct {
	HTMLTemplateFile string
	Name             string
	Subject          string
	FromEmail        string
	FromName         string
	TextContent      string
}
