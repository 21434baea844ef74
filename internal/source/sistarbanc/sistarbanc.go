// Package sistarbanc scrapes card movements and pending authorizations from
// the Sistarbanc customer site.
package sistarbanc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

// DefaultBaseURL is the root of the customer site.
const DefaultBaseURL = "https://www.e-sistarbanc.com.uy/"

const (
	loginPath          = "ingresar/"
	movementsPath      = "ac_movimientos_actuales.php"
	authorizationsPath = "ac_autorizaciones_pendientes.php"
)

// Column names of the listing tables.
const (
	colCard         = "Tarjeta"
	colTitle        = "Concepto"
	colMoved        = "Mov."
	colPosted       = "Ing."
	colDate         = "Fecha"
	colTime         = "Hora"
	colAuthID       = "Autorización"
	colInstallment  = "Nro. Cuota"
	colInstallments = "Cant. Cuotas"
	colUYU          = "$"
	colUSD          = "USD"
)

// summaryRows are statement totals listed in the movements table.
var summaryRows = map[string]bool{
	"TOTAL TARJETA":               true,
	"SALDO AL ULTIMO CORTE":       true,
	"SALDO REGISTRADO A LA FECHA": true,
}

// Client is one Sistarbanc session. It is not safe for concurrent use.
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

// Login loads the login page for its session cookie and posts the form. The
// site answers 200 either way; getting the login form back means the
// credentials were rejected.
func (c *Client) Login(ctx context.Context) error {
	if _, err := c.get(ctx, loginPath); err != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderSistarbanc, Err: err}
	}

	form := url.Values{
		"email_acc":    {c.username},
		"clave_acc":    {c.password},
		"btn_ingresar": {"Ingresar"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(loginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderSistarbanc, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.endpoint(loginPath))

	doc, err := c.do(req)
	if err != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderSistarbanc, Err: err}
	}
	if find(doc, func(n *html.Node) bool { return attr(n, "name") == "clave_acc" }) != nil {
		return &domain.AuthenticationError{Provider: domain.ProviderSistarbanc, Err: errors.New("credentials rejected")}
	}
	return nil
}

// Fetch returns the current snapshot of a Sistarbanc stream.
func (c *Client) Fetch(ctx context.Context, stream domain.Stream) (domain.Snapshot, error) {
	switch stream.Kind {
	case domain.KindSistarbancMovement:
		return c.fetchTable(ctx, stream, movementsPath, parseMovement)
	case domain.KindSistarbancAuthorization:
		return c.fetchTable(ctx, stream, authorizationsPath, parseAuthorization)
	default:
		return nil, fmt.Errorf("Fetch: sistarbanc cannot fetch %s streams", stream.Kind)
	}
}

// Close is a no-op; the session lives in the HTTP client's cookie jar.
func (c *Client) Close() error { return nil }

type rowParser func(row map[string]string) (domain.Record, error)

func (c *Client) fetchTable(ctx context.Context, stream domain.Stream, path string, parse rowParser) (domain.Snapshot, error) {
	doc, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	rows, err := listingRows(doc)
	if err != nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("%s: %w", path, err)}
	}

	snap := make(domain.Snapshot, 0, len(rows))
	for i, row := range rows {
		if summaryRows[row[colTitle]] {
			continue
		}
		if !cardMatches(row[colCard], stream.CardNumber) {
			continue
		}
		record, err := parse(row)
		if err != nil {
			return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("%s row %d: %w", path, i+1, err)}
		}
		snap = append(snap, record)
	}
	return snap, nil
}

// listingRows extracts the listing table rows. A page without the content
// block is unexpected (usually an expired session); a content block without
// a table means there is nothing to list.
func listingRows(doc *html.Node) ([]map[string]string, error) {
	content := find(doc, hasClasses("maq_contenido", "cuenta"))
	if content == nil {
		return nil, errors.New("missing content block")
	}
	listado := find(content, hasID("listado"))
	if listado == nil {
		return nil, nil
	}
	table := find(listado, isAtom(atom.Table))
	if table == nil {
		return nil, nil
	}
	return tableRows(table), nil
}

// cardMatches reports whether a row's card column refers to the configured
// card. Cards are shown masked, so the configured number matches on its
// trailing digits. An empty filter matches every card.
func cardMatches(card, filter string) bool {
	if filter == "" {
		return true
	}
	strip := func(s string) string { return strings.ReplaceAll(s, " ", "") }
	return strings.HasSuffix(strip(card), strip(filter))
}

func parseMovement(row map[string]string) (domain.Record, error) {
	moved, err := parseDate(row, colMoved)
	if err != nil {
		return nil, err
	}
	posted, err := parseDate(row, colPosted)
	if err != nil {
		return nil, err
	}
	amount, currency, err := amountAndCurrency(row)
	if err != nil {
		return nil, err
	}
	return domain.SistarbancMovement{
		Card:     row[colCard],
		Posted:   posted,
		Title:    row[colTitle],
		Amount:   amount,
		Currency: currency,
		Moved:    moved,
	}, nil
}

func parseAuthorization(row map[string]string) (domain.Record, error) {
	raw := strings.TrimSpace(row[colDate] + " " + row[colTime])
	at, err := time.Parse(domain.SistarbancDateTimeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s/%s %q: %w", colDate, colTime, raw, err)
	}
	amount, currency, err := amountAndCurrency(row)
	if err != nil {
		return nil, err
	}
	return domain.SistarbancAuthorization{
		Card:         row[colCard],
		At:           civil.DateTimeOf(at),
		Title:        row[colTitle],
		Amount:       amount,
		Currency:     currency,
		ID:           row[colAuthID],
		Installment:  atoiOrZero(row[colInstallment]),
		Installments: atoiOrZero(row[colInstallments]),
	}, nil
}

func parseDate(row map[string]string, col string) (civil.Date, error) {
	v, ok := row[col]
	if !ok {
		return civil.Date{}, fmt.Errorf("missing column %q", col)
	}
	t, err := time.Parse(domain.SistarbancDateLayout, v)
	if err != nil {
		return civil.Date{}, fmt.Errorf("parse %s %q: %w", col, v, err)
	}
	return civil.DateOf(t), nil
}

// amountAndCurrency picks the USD column when it holds a non-zero amount and
// the peso column otherwise.
func amountAndCurrency(row map[string]string) (decimal.Decimal, string, error) {
	if usd, ok := parseAmount(row[colUSD]); ok && !usd.IsZero() {
		return usd, "USD", nil
	}
	if uyu, ok := parseAmount(row[colUYU]); ok && !uyu.IsZero() {
		return uyu, "UYU", nil
	}
	return decimal.Decimal{}, "", fmt.Errorf("no amount in %q or %q columns", colUSD, colUYU)
}

// parseAmount parses amounts written with a decimal comma, optionally with
// dots as thousands separators ("1.234,56").
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) get(ctx context.Context, path string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req)
}

// do sends req and parses the response as HTML, converting the page's
// declared charset to UTF-8.
func (c *Client) do(req *http.Request) (*html.Node, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: unexpected status %s", req.Method, req.URL.Path, resp.Status)
	}
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: detect charset: %w", req.Method, req.URL.Path, err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: parse html: %w", req.Method, req.URL.Path, err)
	}
	return doc, nil
}
