package config

import (
	"fmt"
	"time"

	"github.com/pardreamin/prospectsync/internal/fields"
)

// ConvertToSettings converts parsed configuration data to Settings.
// The input data should have been validated against the schema before calling
// this function; the checks here cover what the schema cannot express.
//
// The configuration is expected to have this structure:
//
//	salesforce:   {url, grantType, clientId, clientSecret, username, ...}
//	pardot:       {url, businessUnitId, legacyApiVersion, maxBatchSize, ...}
//	fieldNaming:  {apiFormat, humanFormat, listingCountMin, listingCountMax}
//	data:         {source, recipientsFile, listingsFile, database}
//	recipients:   {filter}
//	send:         {htmlTemplateFile, name, subject, fromEmail, fromName}
func ConvertToSettings(data map[string]interface{}) (*Settings, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}

	s := &Settings{}
	var err error

	if s.Salesforce, err = convertSalesforce(section(data, "salesforce")); err != nil {
		return nil, err
	}
	if s.Pardot, err = convertPardot(section(data, "pardot")); err != nil {
		return nil, err
	}
	if s.FieldNaming, err = convertFieldNaming(section(data, "fieldNaming")); err != nil {
		return nil, err
	}
	if s.Data, err = convertData(section(data, "data")); err != nil {
		return nil, err
	}
	s.Recipients = RecipientSettings{Filter: getString(section(data, "recipients"), "filter", "")}
	s.Send = convertSend(section(data, "send"))

	return s, nil
}

func convertSalesforce(m map[string]interface{}) (SalesforceSettings, error) {
	timeout, err := getDuration(m, "timeout", DefaultHTTPTimeout)
	if err != nil {
		return SalesforceSettings{}, fmt.Errorf("salesforce.timeout: %w", err)
	}
	return SalesforceSettings{
		URL:            getString(m, "url", ""),
		GrantType:      getString(m, "grantType", DefaultGrantType),
		ClientID:       getString(m, "clientId", ""),
		ClientSecret:   getString(m, "clientSecret", ""),
		Username:       getString(m, "username", ""),
		Password:       getString(m, "password", ""),
		SecurityToken:  getString(m, "securityToken", ""),
		PrivateKeyFile: getString(m, "privateKeyFile", ""),
		Timeout:        timeout,
	}, nil
}

func convertPardot(m map[string]interface{}) (PardotSettings, error) {
	timeout, err := getDuration(m, "timeout", DefaultHTTPTimeout)
	if err != nil {
		return PardotSettings{}, fmt.Errorf("pardot.timeout: %w", err)
	}
	p := PardotSettings{
		URL:              getString(m, "url", ""),
		BusinessUnitID:   getString(m, "businessUnitId", ""),
		LegacyAPIVersion: getInt(m, "legacyApiVersion", DefaultLegacyAPIVersion),
		MaxBatchSize:     getInt(m, "maxBatchSize", DefaultMaxBatchSize),
		CampaignID:       getString(m, "campaignId", ""),
		EmailTemplateID:  getString(m, "emailTemplateId", ""),
		SendingListID:    getString(m, "sendingListId", ""),
		Timeout:          timeout,
	}
	if p.MaxBatchSize < 1 {
		return PardotSettings{}, ValidationError{
			Path:    "/pardot/maxBatchSize",
			Type:    "range",
			Message: fmt.Sprintf("maxBatchSize must be at least 1, got %d", p.MaxBatchSize),
		}
	}
	return p, nil
}

func convertFieldNaming(m map[string]interface{}) (FieldNamingSettings, error) {
	apiFormat, err := fields.ParseFormat(getString(m, "apiFormat", ""))
	if err != nil {
		return FieldNamingSettings{}, ValidationError{Path: "/fieldNaming/apiFormat", Type: "format", Message: err.Error()}
	}
	humanFormat, err := fields.ParseFormat(getString(m, "humanFormat", ""))
	if err != nil {
		return FieldNamingSettings{}, ValidationError{Path: "/fieldNaming/humanFormat", Type: "format", Message: err.Error()}
	}

	f := FieldNamingSettings{
		APIFormat:       apiFormat,
		HumanFormat:     humanFormat,
		ListingCountMin: getInt(m, "listingCountMin", DefaultListingCountMin),
		ListingCountMax: getInt(m, "listingCountMax", DefaultListingCountMax),
		RegistryPath:    getString(m, "registryFile", DefaultRegistryPath),
	}
	if f.ListingCountMax < f.ListingCountMin {
		return FieldNamingSettings{}, ValidationError{
			Path:    "/fieldNaming/listingCountMax",
			Type:    "range",
			Message: fmt.Sprintf("listingCountMax (%d) is below listingCountMin (%d)", f.ListingCountMax, f.ListingCountMin),
		}
	}
	return f, nil
}

func convertData(m map[string]interface{}) (DataSettings, error) {
	db := section(m, "database")
	timeout, err := getDuration(db, "timeout", DefaultDatabaseTimeout)
	if err != nil {
		return DataSettings{}, fmt.Errorf("data.database.timeout: %w", err)
	}
	d := DataSettings{
		Source:         getString(m, "source", SourceCSV),
		RecipientsFile: getString(m, "recipientsFile", DefaultRecipientsFile),
		ListingsFile:   getString(m, "listingsFile", DefaultListingsFile),
		Database: DatabaseSettings{
			ConnectionString:    getString(db, "connectionString", ""),
			ConnectionStringRef: getString(db, "connectionStringRef", ""),
			RecipientsQuery:     getString(db, "recipientsQuery", ""),
			ListingsQuery:       getString(db, "listingsQuery", ""),
			Timeout:             timeout,
		},
	}
	if d.Source == SourceDatabase {
		if d.Database.ConnectionString == "" && d.Database.ConnectionStringRef == "" {
			return DataSettings{}, ValidationError{
				Path:    "/data/database",
				Type:    "required",
				Message: "connectionString or connectionStringRef is required for the database source",
			}
		}
		if d.Database.RecipientsQuery == "" || d.Database.ListingsQuery == "" {
			return DataSettings{}, ValidationError{
				Path:    "/data/database",
				Type:    "required",
				Message: "recipientsQuery and listingsQuery are required for the database source",
			}
		}
	}
	return d, nil
}

func convertSend(m map[string]interface{}) SendSettings {
	return SendSettings{
		HTMLTemplateFile: getString(m, "htmlTemplateFile", ""),
		Name:             getString(m, "name", DefaultEmailName),
		Subject:          getString(m, "subject", DefaultSubject),
		FromEmail:        getString(m, "fromEmail", DefaultFromEmail),
		FromName:         getString(m, "fromName", DefaultFromName),
		TextContent:      getString(m, "textContent", DefaultTextContent),
	}
}

// section returns data[key] as a map, or an empty map.
func section(data map[string]interface{}, key string) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	if m, ok := data[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func getString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// getInt accepts the numeric types produced by both the JSON and YAML parsers.
func getInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case uint64:
		return int(v)
	}
	return def
}

func getDuration(m map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	v, ok := m[key].(string)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}
