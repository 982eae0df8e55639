package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"helpmeout/internal/logging"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	// StateTTL bounds how long a user may take at the provider's consent page.
	StateTTL = 10 * time.Minute

	stateIssuer = "helpmeout"
)

var (
	// ErrInvalidState is returned for missing, forged or expired state.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrUnknownProvider is returned for providers that are not configured.
	ErrUnknownProvider = errors.New("unknown oauth provider")
)

// Credentials are the client id and secret issued by a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both values are set.
func (c Credentials) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Profile is the identity returned by a provider.
type Profile struct {
	Email string
	Name  string
}

type provider struct {
	config      *oauth2.Config
	userInfoURL string
}

// Manager holds the configured providers.
type Manager struct {
	providers map[string]*provider
	secret    []byte
	now       func() time.Time
}

type stateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// NewManager configures every enabled provider. Callback URLs are
// {baseURL}/srce/api/{provider}/callback/.
func NewManager(secret, baseURL string, googleCreds, facebookCreds Credentials) *Manager {
	m := &Manager{
		providers: make(map[string]*provider),
		secret:    []byte(secret),
		now:       time.Now,
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if googleCreds.Enabled() {
		m.providers[ProviderGoogle] = &provider{
			config: &oauth2.Config{
				ClientID:     googleCreds.ClientID,
				ClientSecret: googleCreds.ClientSecret,
				RedirectURL:  baseURL + "/srce/api/google/callback/",
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     google.Endpoint,
			},
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		}
	}
	if facebookCreds.Enabled() {
		m.providers[ProviderFacebook] = &provider{
			config: &oauth2.Config{
				ClientID:     facebookCreds.ClientID,
				ClientSecret: facebookCreds.ClientSecret,
				RedirectURL:  baseURL + "/srce/api/facebook/callback/",
				Scopes:       []string{"email", "public_profile"},
				Endpoint:     facebook.Endpoint,
			},
			userInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
		}
	}

	if names := m.Providers(); len(names) > 0 {
		logging.Info("OAuth providers enabled: %s", strings.Join(names, ", "))
	}
	return m
}

// Providers lists the configured provider names.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) provider(name string) (*provider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// LoginURL returns the provider's consent URL with a fresh signed state.
func (m *Manager) LoginURL(name string) (string, error) {
	p, err := m.provider(name)
	if err != nil {
		return "", err
	}
	state, err := m.NewState(name)
	if err != nil {
		return "", err
	}
	return p.config.AuthCodeURL(state), nil
}

// NewState signs a state token for the provider.
func (m *Manager) NewState(name string) (string, error) {
	now := m.now()
	claims := stateClaims{
		Provider: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return signed, nil
}

// ValidateState checks that state was issued by this server for provider
// and has not expired.
func (m *Manager) ValidateState(name, state string) error {
	if state == "" {
		return ErrInvalidState
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != name {
		return fmt.Errorf("%w: issued for %s", ErrInvalidState, claims.Provider)
	}
	return nil
}

// Exchange validates state, trades code for a token and fetches the
// user's profile.
func (m *Manager) Exchange(ctx context.Context, name, state, code string) (*Profile, error) {
	p, err := m.provider(name)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateState(name, state); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profile, err := fetchProfile(ctx, p.config.Client(ctx, token), p.userInfoURL)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func fetchProfile(ctx context.Context, client *http.Client, url string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("profile request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("provider did not return an email address")
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(info.Email, "@")
	}
	return &Profile{Email: info.Email, Name: name}, nil
}
