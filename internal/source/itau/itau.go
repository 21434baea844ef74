// Package itau is a client for the Itaú Uruguay online banking JSON API.
package itau

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"golang.org/x/text/encoding/charmap"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

// DefaultBaseURL is the root of the online banking API.
const DefaultBaseURL = "https://www.itaulink.com.uy/trx/"

// The bank reports dates as epoch milliseconds of local midnight.
var montevideo = time.FixedZone("UYT", -3*60*60)

// userDataPattern finds the user data blob embedded in the page returned
// after a successful login.
var userDataPattern = regexp.MustCompile(`JSON\.parse\('([^']*)'\)`)

// Client is one Itaú session. It is not safe for concurrent use.
type Client struct {
	http     *http.Client
	baseURL  *url.URL
	username string
	password string
}

// New creates a session using client, which should carry a cookie jar. An
// empty baseURL means DefaultBaseURL.
func New(client *http.Client, username, password, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		u, _ = url.Parse(DefaultBaseURL)
	}
	return &Client{http: client, baseURL: u, username: username, password: password}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

type userData struct {
	Cuentas map[string]json.RawMessage `json:"cuentas"`
}

// Login posts the credentials form. The bank answers 200 either way; a
// successful login is recognised by the embedded user data.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"tipo_documento": {"1"},
		"tipo_usuario":   {"R"},
		"nro_documento":  {c.username},
		"pass":           {c.password},
	}
	body, err := c.post(ctx, "doLogin", form)
	if err != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderItau, Err: err}
	}

	m := userDataPattern.FindSubmatch(body)
	if m == nil {
		return &domain.AuthenticationError{Provider: domain.ProviderItau, Err: errors.New("login page did not return user data")}
	}
	var data userData
	if err := json.Unmarshal(m[1], &data); err != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderItau, Err: fmt.Errorf("decode user data: %w", err)}
	}
	if data.Cuentas == nil {
		return &domain.AuthenticationError{Provider: domain.ProviderItau, Err: errors.New("user data has no accounts")}
	}
	return nil
}

// Fetch returns the current snapshot of an Itaú stream.
func (c *Client) Fetch(ctx context.Context, stream domain.Stream) (domain.Snapshot, error) {
	switch stream.Kind {
	case domain.KindItauAccountMovement:
		return c.fetchAccountMovements(ctx, stream)
	case domain.KindItauCardAuthorization:
		return c.fetchCardAuthorizations(ctx, stream)
	default:
		return nil, fmt.Errorf("Fetch: itau cannot fetch %s streams", stream.Kind)
	}
}

// Close is a no-op; the session lives in the HTTP client's cookie jar.
func (c *Client) Close() error { return nil }

type envelope struct {
	Msg *struct {
		Data json.RawMessage `json:"data"`
	} `json:"itaulink_msg"`
}

// fetchData posts to path and returns the itaulink_msg.data payload.
func (c *Client) fetchData(ctx context.Context, stream domain.Stream, path string) (json.RawMessage, error) {
	body, err := c.post(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	if env.Msg == nil || len(env.Msg.Data) == 0 || string(env.Msg.Data) == "null" {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("%s: missing itaulink_msg.data", path)}
	}
	return env.Msg.Data, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("post %s: unexpected status %s", path, resp.Status)
	}
	return toUTF8(body), nil
}

// toUTF8 converts Latin-1 responses, which the bank sends for some
// endpoints, to UTF-8.
func toUTF8(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	converted, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return converted
}

// epochDate is the {"millis": ...} date object used throughout the API.
type epochDate struct {
	Millis *int64 `json:"millis"`
}

func (d epochDate) civil() (civil.Date, error) {
	if d.Millis == nil {
		return civil.Date{}, errors.New("date without millis")
	}
	return civil.DateOf(time.UnixMilli(*d.Millis).In(montevideo)), nil
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// looseInt accepts a JSON number or a numeric string.
type looseInt int

func (i *looseInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return fmt.Errorf("expected number, got %s", b)
		}
		n = json.Number(strings.TrimSpace(str))
	}
	if n == "" {
		*i = 0
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*i = looseInt(v)
	return nil
}

// currencyCode maps the bank's currency names to ISO codes.
func currencyCode(moneda string) string {
	switch strings.ToLower(strings.TrimSpace(moneda)) {
	case "dolares", "dólares", "us.d", "usd":
		return "USD"
	case "pesos", "urgp", "uyu":
		return "UYU"
	default:
		return moneda
	}
}
