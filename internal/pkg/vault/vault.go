package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/env"
)

// Sentinel errors surfaced to sync callers. Callers decide whether an org
// needs a reconnect banner; the vault never swallows a refresh failure.
var (
	ErrNotConnected = errors.New("vault: provider not connected for organization")
	ErrAuthExpired  = errors.New("vault: credential refresh failed, reconnect required")
)

// refreshSkew is how close to expiry a token may get before it is refreshed
// ahead of use.
const refreshSkew = 2 * time.Minute

const oauthStateTTL = 10 * time.Minute

// providerTimeout bounds every outbound call made with a vault-issued client.
const providerTimeout = 15 * time.Second

// Credential is the opaque handle returned to sync callers. Raw tokens stay
// inside the vault and the models row.
type Credential struct {
	OrganizationID uint
	Provider       string
	AccountEmail   string

	token *oauth2.Token
}

// Service owns IntegrationCredential rows: OAuth handshake, refresh and
// deletion. Concurrent refreshes for the same credential are serialized with
// a per-credential lock so two near-expiry callers cannot race each other
// into invalidating a rotated refresh token.
type Service struct {
	repo Repository
	conf *oauth2.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a vault from an injected repository and OAuth config.
func NewService(repo Repository, conf *oauth2.Config) *Service {
	return &Service{repo: repo, conf: conf, locks: make(map[string]*sync.Mutex)}
}

// NewServiceFromDB creates a vault wired to GORM and the env-configured
// Google OAuth application.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), GoogleOAuthConfigFromEnv())
}

// GoogleOAuthConfigFromEnv builds the OAuth application config. The token
// endpoint can be overridden for tests.
func GoogleOAuthConfigFromEnv() *oauth2.Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}

	endpoint := google.Endpoint
	if tokenURL := strings.TrimSpace(env.GetEnv("GOOGLE_TOKEN_URL", "")); tokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: endpoint.AuthURL, TokenURL: tokenURL}
	}

	return &oauth2.Config{
		ClientID:     env.GetEnv("GOOGLE_KEY", ""),
		ClientSecret: env.GetEnv("GOOGLE_SECRET", ""),
		RedirectURL:  base + "/calendar/google/callback",
		Endpoint:     endpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/calendar.events",
			"https://www.googleapis.com/auth/userinfo.email",
		},
	}
}

func (s *Service) credentialLock(orgID uint, provider string) *sync.Mutex {
	key := fmt.Sprintf("%d:%s", orgID, provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetValidCredential returns a usable credential for the org/provider pair,
// refreshing it first when the stored token is within the expiry skew.
// Returns ErrNotConnected when the org never linked the provider and
// ErrAuthExpired when the refresh grant is rejected.
func (s *Service) GetValidCredential(ctx context.Context, orgID uint, provider string) (*Credential, error) {
	row, err := s.repo.GetCredential(orgID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	if strings.TrimSpace(row.RefreshToken) == "" {
		return nil, ErrNotConnected
	}

	if !needsRefresh(row, time.Now()) {
		return credentialFromRow(row), nil
	}

	lock := s.credentialLock(orgID, provider)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have finished the
	// refresh while we were waiting.
	row, err = s.repo.GetCredential(orgID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	if !needsRefresh(row, time.Now()) {
		return credentialFromRow(row), nil
	}

	refreshed, err := s.refresh(ctx, row)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func needsRefresh(row *models.IntegrationCredential, now time.Time) bool {
	if row.TokenExpiresAt == nil {
		return true
	}
	return row.TokenExpiresAt.Before(now.Add(refreshSkew))
}

func credentialFromRow(row *models.IntegrationCredential) *Credential {
	tok := &oauth2.Token{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    "Bearer",
	}
	if row.TokenExpiresAt != nil {
		tok.Expiry = *row.TokenExpiresAt
	}
	return &Credential{
		OrganizationID: row.OrganizationID,
		Provider:       row.Provider,
		AccountEmail:   row.AccountEmail,
		token:          tok,
	}
}

// refresh exchanges the stored refresh token for a fresh access token and
// persists the result, including a rotated refresh token when the provider
// issues one.
func (s *Service) refresh(ctx context.Context, row *models.IntegrationCredential) (*Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	src := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: row.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Errorf("[Vault] Refresh failed for org %d provider %s: %v", row.OrganizationID, row.Provider, err)
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	row.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		row.RefreshToken = tok.RefreshToken
	}
	expiry := tok.Expiry
	row.TokenExpiresAt = &expiry
	if err := s.repo.SaveCredential(row); err != nil {
		return nil, err
	}

	log.Infof("[Vault] Refreshed %s credential for org %d (expires %s)", row.Provider, row.OrganizationID, expiry.Format(time.RFC3339))
	return credentialFromRow(row), nil
}

// HTTPClient returns an authenticated *http.Client with a bounded timeout for
// calls against the provider API. The client refreshes the token itself only
// within the lifetime of a single request chain; long-lived validity is the
// job of GetValidCredential.
func (s *Service) HTTPClient(ctx context.Context, orgID uint, provider string) (*http.Client, *Credential, error) {
	cred, err := s.GetValidCredential(ctx, orgID, provider)
	if err != nil {
		return nil, nil, err
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.token))
	client.Timeout = providerTimeout
	return client, cred, nil
}

// StartAuthURL begins the connect flow: it returns the provider consent URL
// with offline access and binds a one-time state token to the org.
func (s *Service) StartAuthURL(orgID uint) (string, error) {
	if strings.TrimSpace(s.conf.ClientID) == "" {
		return "", errors.New("vault: GOOGLE_KEY is not configured")
	}

	state := uuid.NewString()
	if err := cache.Set(oauthStateKey(state), fmt.Sprintf("%d", orgID), oauthStateTTL); err != nil {
		return "", fmt.Errorf("vault: failed to store oauth state: %w", err)
	}

	url := s.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return url, nil
}

// HandleCallback finishes the connect flow: validates the state, exchanges
// the code, resolves the linked account email and upserts the credential.
// Returns the org the state was bound to.
func (s *Service) HandleCallback(ctx context.Context, state, code string) (uint, *Credential, error) {
	orgID, err := consumeOAuthState(state)
	if err != nil {
		return 0, nil, err
	}
	if strings.TrimSpace(code) == "" {
		return 0, nil, errors.New("vault: oauth code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		return 0, nil, fmt.Errorf("vault: code exchange failed: %w", err)
	}

	email := s.resolveAccountEmail(ctx, tok)

	expiry := tok.Expiry
	row := &models.IntegrationCredential{
		OrganizationID: orgID,
		Provider:       models.CalendarProviderGoogle,
		AccountEmail:   email,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: &expiry,
	}
	if err := s.repo.UpsertCredential(row); err != nil {
		return 0, nil, err
	}

	log.Infof("[Vault] Linked %s account %s for org %d", row.Provider, email, orgID)
	return orgID, credentialFromRow(row), nil
}

// resolveAccountEmail is best-effort: a missing email never fails the
// connect flow.
func (s *Service) resolveAccountEmail(ctx context.Context, tok *oauth2.Token) string {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		log.Errorf("[Vault] Could not build userinfo service: %v", err)
		return ""
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		log.Errorf("[Vault] Could not resolve account email: %v", err)
		return ""
	}
	return strings.TrimSpace(info.Email)
}

// Disconnect drops the stored credential. The caller is responsible for
// flipping the org's sync settings.
func (s *Service) Disconnect(ctx context.Context, orgID uint, provider string) error {
	_ = ctx
	return s.repo.DeleteCredential(orgID, provider)
}

func oauthStateKey(state string) string {
	return "oauth:state:" + state
}

func consumeOAuthState(state string) (uint, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return 0, errors.New("vault: oauth state is required")
	}
	val, err := cache.Get(oauthStateKey(state))
	if err != nil {
		return 0, errors.New("vault: unknown or expired oauth state")
	}
	_ = cache.Delete(oauthStateKey(state))

	var orgID uint
	if _, err := fmt.Sscanf(val, "%d", &orgID); err != nil || orgID == 0 {
		return 0, errors.New("vault: malformed oauth state binding")
	}
	return orgID, nil
}
