package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
)

// DefaultEnvFile is read when no --env-file is given. A missing default file
// is not an error.
const DefaultEnvFile = ".env"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROSPECTSYNC_"

// envOverrides maps environment variable suffixes to configuration paths.
// Only credentials and endpoints are overridable; behaviour stays in the file.
var envOverrides = []struct {
	env  string
	path []string
}{
	{"SALESFORCE_URL", []string{"salesforce", "url"}},
	{"SALESFORCE_CLIENT_ID", []string{"salesforce", "clientId"}},
	{"SALESFORCE_CLIENT_SECRET", []string{"salesforce", "clientSecret"}},
	{"SALESFORCE_USERNAME", []string{"salesforce", "username"}},
	{"SALESFORCE_PASSWORD", []string{"salesforce", "password"}},
	{"SALESFORCE_SECURITY_TOKEN", []string{"salesforce", "securityToken"}},
	{"SALESFORCE_PRIVATE_KEY_FILE", []string{"salesforce", "privateKeyFile"}},
	{"PARDOT_URL", []string{"pardot", "url"}},
	{"PARDOT_BUSINESS_UNIT_ID", []string{"pardot", "businessUnitId"}},
	{"DATABASE_URL", []string{"data", "database", "connectionString"}},
}

// LoadOptions controls how Load resolves secrets.
type LoadOptions struct {
	// EnvFile is a dotenv file loaded before overrides are applied. Empty means
	// DefaultEnvFile, which may be absent.
	EnvFile string

	// LookupEnv resolves environment variables. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Check parses the file at path, loads the env file, applies the environment
// overlay and validates the result against the schema. It stops at the first
// stage that fails; an env file that cannot be read is a parse error.
func Check(path string, opts LoadOptions) *Report {
	if path == "" {
		path = DefaultConfigPath
	}
	parsed := ParseFile(path)
	report := &Report{
		Data:        parsed.Data,
		ParseErrors: parsed.Errors,
		FilePath:    path,
		Format:      parsed.Format,
	}
	if !parsed.IsValid() {
		return report
	}
	if err := LoadEnvFile(opts.EnvFile); err != nil {
		report.ParseErrors = append(report.ParseErrors, ParseError{Message: err.Error(), Type: ErrorTypeEnv})
		return report
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if report.Data == nil {
		report.Data = map[string]interface{}{}
	}
	report.EnvOverrides = ApplyEnvOverrides(report.Data, lookup)
	logger.Debug("configuration parsed", "path", path, "format", parsed.Format, "env_overrides", report.EnvOverrides)

	report.ValidationErrors = ValidateConfig(report.Data).Errors
	return report
}

// Load checks the configuration at path and converts it to Settings. Parse
// failures are bound to errhandling.SiteConfigParse, everything else to
// SiteConfigValidate.
func Load(path string, opts LoadOptions) (*Settings, error) {
	report := Check(path, opts)
	if len(report.ParseErrors) > 0 {
		return nil, errhandling.Fail(errhandling.SiteConfigParse, joinParseErrors(report.ParseErrors))
	}
	if len(report.ValidationErrors) > 0 {
		return nil, errhandling.Fail(errhandling.SiteConfigValidate, joinValidationErrors(report.ValidationErrors))
	}
	settings, err := ConvertToSettings(report.Data)
	if err != nil {
		return nil, errhandling.Fail(errhandling.SiteConfigValidate, err)
	}
	return settings, nil
}

// ApplyEnvOverrides writes every set PROSPECTSYNC_* variable into data and
// returns the number applied. Intermediate sections are created as needed.
func ApplyEnvOverrides(data map[string]interface{}, lookup func(string) (string, bool)) int {
	applied := 0
	for _, o := range envOverrides {
		value, ok := lookup(EnvPrefix + o.env)
		if !ok || value == "" {
			continue
		}
		node := data
		for _, key := range o.path[:len(o.path)-1] {
			child, isMap := node[key].(map[string]interface{})
			if !isMap {
				child = map[string]interface{}{}
				node[key] = child
			}
			node = child
		}
		node[o.path[len(o.path)-1]] = value
		applied++
	}
	return applied
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. An empty path means
// DefaultEnvFile, which may be absent.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		logger.Debug("environment file loaded", "path", path)
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", path, err)
}

func joinParseErrors(errs []ParseError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func joinValidationErrors(errs []ValidationError) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("configuration failed validation: %s", strings.Join(msgs, "; "))
}
