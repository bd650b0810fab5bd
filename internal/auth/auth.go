// Package auth obtains a Salesforce access token for the Pardot API.
//
// Two OAuth grants are supported: the username-password flow used by the
// interactive scripts and the JWT bearer flow for unattended runs. Either
// way the result is an immutable Credential that callers pass explicitly to
// the API client; nothing is written back into the configuration.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
)

const (
	tokenPath            = "/services/oauth2/token"
	jwtBearerGrantType   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime    = 3 * time.Minute
	maxTokenResponseSize = 64 * 1024
)

// Errors returned by New.
var (
	ErrMissingPrivateKey = errors.New("privateKeyFile is required for the jwt-bearer grant")
	ErrUnknownGrant      = errors.New("unknown grant type")
)

// Credential is a bearer token and the instance it was issued for.
type Credential struct {
	AccessToken string
	InstanceURL string
	IssuedAt    time.Time
}

// AuthorizationHeader returns the Authorization header value.
func (c Credential) AuthorizationHeader() string {
	return "Bearer " + c.AccessToken
}

// Error is a non-2xx answer from the token endpoint.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// Authenticator exchanges configured credentials for a Credential.
type Authenticator struct {
	settings config.SalesforceSettings
	client   *http.Client
	key      *rsa.PrivateKey
	now      func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) { a.client = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithPrivateKey supplies the RSA key directly instead of reading
// PrivateKeyFile.
func WithPrivateKey(key *rsa.PrivateKey) Option {
	return func(a *Authenticator) { a.key = key }
}

// New creates an Authenticator. For the jwt-bearer grant the private key is
// loaded here so a bad key fails before any network call.
func New(settings config.SalesforceSettings, opts ...Option) (*Authenticator, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	a := &Authenticator{
		settings: settings,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	switch settings.GrantType {
	case config.GrantPassword, "":
	case config.GrantJWTBearer:
		if a.key != nil {
			break
		}
		if settings.PrivateKeyFile == "" {
			return nil, ErrMissingPrivateKey
		}
		key, err := loadPrivateKey(settings.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		a.key = key
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGrant, settings.GrantType)
	}
	return a, nil
}

// Authenticate requests an access token. A non-2xx answer is returned as an
// *Error classified as an authentication failure.
func (a *Authenticator) Authenticate(ctx context.Context) (Credential, error) {
	form, err := a.grantForm()
	if err != nil {
		return Credential{}, err
	}

	endpoint := strings.TrimRight(a.settings.URL, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := a.now()
	resp, err := a.client.Do(req)
	if err != nil {
		return Credential{}, errhandling.NewNetworkError("token request failed", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close token response body", slog.String("error", closeErr.Error()))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return Credential{}, fmt.Errorf("reading token response body: %w", err)
	}

	var tokenResp struct {
		AccessToken      string `json:"access_token"`
		InstanceURL      string `json:"instance_url"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	decodeErr := json.Unmarshal(body, &tokenResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		authErr := &Error{StatusCode: resp.StatusCode, Code: tokenResp.Error, Description: tokenResp.ErrorDescription}
		return Credential{}, errhandling.NewAuthenticationError(resp.StatusCode, authErr.Error(), authErr)
	}
	if decodeErr != nil {
		return Credential{}, fmt.Errorf("parsing token response: %w", decodeErr)
	}
	if strings.TrimSpace(tokenResp.AccessToken) == "" {
		return Credential{}, errhandling.NewAuthenticationError(resp.StatusCode, "token endpoint returned an empty access_token", nil)
	}

	logger.Debug("salesforce token obtained",
		slog.String("grant_type", a.grantType()),
		slog.String("instance_url", tokenResp.InstanceURL),
		slog.Duration("duration", a.now().Sub(start)),
	)

	return Credential{
		AccessToken: tokenResp.AccessToken,
		InstanceURL: tokenResp.InstanceURL,
		IssuedAt:    start,
	}, nil
}

func (a *Authenticator) grantType() string {
	if a.settings.GrantType == "" {
		return config.GrantPassword
	}
	return a.settings.GrantType
}

func (a *Authenticator) grantForm() (url.Values, error) {
	form := url.Values{}
	if a.grantType() == config.GrantJWTBearer {
		assertion, err := a.assertion()
		if err != nil {
			return nil, err
		}
		form.Set("grant_type", jwtBearerGrantType)
		form.Set("assertion", assertion)
		return form, nil
	}

	form.Set("grant_type", "password")
	form.Set("client_id", a.settings.ClientID)
	form.Set("client_secret", a.settings.ClientSecret)
	form.Set("username", a.settings.Username)
	// Salesforce expects the security token appended to the password.
	form.Set("password", a.settings.Password+a.settings.SecurityToken)
	return form, nil
}

// assertion builds the signed JWT for the bearer grant: iss is the connected
// app's consumer key, sub the username and aud the login host. Salesforce
// expects aud as a plain string, not a one-element array.
func (a *Authenticator) assertion() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss": a.settings.ClientID,
		"sub": a.settings.Username,
		"aud": strings.TrimRight(a.settings.URL, "/"),
		"exp": now.Add(assertionLifetime).Unix(),
		"iat": now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("signing jwt assertion: %w", err)
	}
	return signed, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}
	return key, nil
}
