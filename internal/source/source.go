// Package source fetches snapshots from the banks.
//
// A Provider is one logged-in session with a bank. Providers are stateful and
// not safe for concurrent use; the poller creates one per login group and
// cycle, logs in once, fetches every stream of the group in order and closes
// it.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/dvloznov/bank-forwarder/internal/domain"
	"github.com/dvloznov/bank-forwarder/internal/source/itau"
	"github.com/dvloznov/bank-forwarder/internal/source/sistarbanc"
)

// DefaultHTTPTimeout bounds each HTTP request to a bank.
const DefaultHTTPTimeout = 2 * time.Minute

// Provider is a bank session.
type Provider interface {
	// Login authenticates the session. Failures are *domain.AuthenticationError.
	Login(ctx context.Context) error

	// Fetch returns the current snapshot of one stream. Unparseable responses
	// are *domain.FetchStructureError.
	Fetch(ctx context.Context, stream domain.Stream) (domain.Snapshot, error)

	// Close releases the session.
	Close() error
}

// Factory creates an unauthenticated provider for a login group.
type Factory interface {
	NewProvider(ctx context.Context, group domain.LoginGroup) (Provider, error)
}

// Options configures the HTTP providers.
type Options struct {
	// HTTPTimeout bounds each request. Zero means DefaultHTTPTimeout.
	HTTPTimeout time.Duration

	// LookupEnv resolves credential variables. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// ItauBaseURL and SistarbancBaseURL override the bank endpoints.
	ItauBaseURL       string
	SistarbancBaseURL string
}

// HTTPFactory builds the real bank providers.
type HTTPFactory struct {
	opts Options
}

// NewHTTPFactory creates a factory with opts.
func NewHTTPFactory(opts Options) *HTTPFactory {
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &HTTPFactory{opts: opts}
}

// NewProvider resolves the group's credentials and returns a fresh session
// with its own cookie jar. Missing or malformed credentials are reported as
// an authentication failure so the group is skipped and retried next cycle.
func (f *HTTPFactory) NewProvider(_ context.Context, group domain.LoginGroup) (Provider, error) {
	username, password, err := f.credentials(group)
	if err != nil {
		return nil, &domain.AuthenticationError{Provider: group.Provider, Err: err}
	}

	client, err := newHTTPClient(f.opts.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("NewProvider: %w", err)
	}

	switch group.Provider {
	case domain.ProviderItau:
		return itau.New(client, username, password, f.opts.ItauBaseURL), nil
	case domain.ProviderSistarbanc:
		return sistarbanc.New(client, username, password, f.opts.SistarbancBaseURL), nil
	default:
		return nil, fmt.Errorf("NewProvider: unknown provider %q", group.Provider)
	}
}

func (f *HTTPFactory) credentials(group domain.LoginGroup) (string, string, error) {
	value, ok := f.opts.LookupEnv(group.CredentialsEnv)
	if !ok || value == "" {
		return "", "", fmt.Errorf("credentials variable %s is not set", group.CredentialsEnv)
	}
	return ParseCredentials(value)
}

// ParseCredentials splits "user:password". The password may contain colons.
func ParseCredentials(value string) (username, password string, err error) {
	username, password, found := strings.Cut(value, ":")
	if !found || username == "" || password == "" {
		return "", "", fmt.Errorf("credentials must have the form user:password")
	}
	return username, password, nil
}

func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}
