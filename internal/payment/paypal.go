package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sandboxAPIBase = "https://api.sandbox.paypal.com"
	liveAPIBase    = "https://api.paypal.com"
)

// PayPalClient implements Gateway against the PayPal REST Payments API
// (create + execute).
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	currency     string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient creates a client for the given mode ("sandbox" or "live").
func NewPayPalClient(mode, clientID, clientSecret, currency string) *PayPalClient {
	base := sandboxAPIBase
	if mode == "live" {
		base = liveAPIBase
	}
	return newPayPalClient(base, clientID, clientSecret, currency)
}

// NewPayPalClientWithBase creates a client against an explicit API base URL.
// Used by tests to point the client at a stub server.
func NewPayPalClientWithBase(baseURL, clientID, clientSecret, currency string) *PayPalClient {
	return newPayPalClient(baseURL, clientID, clientSecret, currency)
}

func newPayPalClient(baseURL, clientID, clientSecret, currency string) *PayPalClient {
	return &PayPalClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		currency:     currency,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       util.GetLogger(),
	}
}

// wire types, PayPal Payments API shapes

type paypalItem struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity string `json:"quantity"`
}

type paypalItemList struct {
	Items []paypalItem `json:"items"`
}

type paypalAmount struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

type paypalTransaction struct {
	ItemList    *paypalItemList `json:"item_list,omitempty"`
	Amount      paypalAmount    `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalPayer struct {
	PaymentMethod string           `json:"payment_method,omitempty"`
	PayerInfo     *paypalPayerInfo `json:"payer_info,omitempty"`
}

type paypalPayerInfo struct {
	Email string `json:"email"`
}

type paypalPayment struct {
	ID           string              `json:"id,omitempty"`
	Intent       string              `json:"intent"`
	State        string              `json:"state,omitempty"`
	Payer        paypalPayer         `json:"payer"`
	Transactions []paypalTransaction `json:"transactions"`
	RedirectURLs *paypalRedirectURLs `json:"redirect_urls,omitempty"`
	Links        []paypalLink        `json:"links,omitempty"`
}

type paypalRedirectURLs struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// CreatePayment registers a pending payment with PayPal and returns the
// approval URL the customer must be redirected to.
func (c *PayPalClient) CreatePayment(ctx context.Context, req CreateRequest) (*CreatedPayment, error) {
	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}()

	items := make([]paypalItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, paypalItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Price:    item.UnitPrice.StringFixed(2),
			Currency: c.currency,
			Quantity: strconv.Itoa(item.Quantity),
		})
	}

	body := paypalPayment{
		Intent: "sale",
		Payer:  paypalPayer{PaymentMethod: "paypal"},
		RedirectURLs: &paypalRedirectURLs{
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
		Transactions: []paypalTransaction{{
			ItemList: &paypalItemList{Items: items},
			Amount: paypalAmount{
				Currency: c.currency,
				Total:    req.Total.StringFixed(2),
			},
			Description: req.Description,
		}},
	}

	var created paypalPayment
	status, respBody, err := c.doJSON(ctx, http.MethodPost, "/v1/payments/payment", body, &created)
	if err != nil {
		return nil, fmt.Errorf("create payment request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, &CreationError{StatusCode: status, Body: respBody}
	}

	approvalURL := ""
	for _, link := range created.Links {
		if link.Rel == "approval_url" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, &CreationError{StatusCode: status, Body: "response missing approval_url link"}
	}

	c.logger.Info("Payment created",
		zap.String("payment_id", created.ID),
		zap.String("total", req.Total.StringFixed(2)))

	return &CreatedPayment{PaymentID: created.ID, ApprovalURL: approvalURL}, nil
}

// ExecutePayment captures a previously approved payment. This is the call
// that moves money; it is never retried here. Execute-twice safety is the
// provider's guarantee.
func (c *PayPalClient) ExecutePayment(ctx context.Context, paymentID, payerID string) (*ExecutedPayment, error) {
	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	}()

	body := map[string]string{"payer_id": payerID}
	path := fmt.Sprintf("/v1/payments/payment/%s/execute", url.PathEscape(paymentID))

	var executed paypalPayment
	status, respBody, err := c.doJSON(ctx, http.MethodPost, path, body, &executed)
	if err != nil {
		return nil, fmt.Errorf("execute payment request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, &ExecutionError{PaymentID: paymentID, StatusCode: status, Body: respBody}
	}

	if len(executed.Transactions) == 0 {
		return nil, &ExecutionError{PaymentID: paymentID, StatusCode: status, Body: "response missing transactions"}
	}
	tx := executed.Transactions[0]

	total, err := decimal.NewFromString(tx.Amount.Total)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in execute response: %w", err)
	}

	var items []Item
	if tx.ItemList != nil {
		items = make([]Item, 0, len(tx.ItemList.Items))
		for _, it := range tx.ItemList.Items {
			price, err := decimal.NewFromString(it.Price)
			if err != nil {
				return nil, fmt.Errorf("invalid item price in execute response: %w", err)
			}
			qty, err := strconv.Atoi(it.Quantity)
			if err != nil {
				return nil, fmt.Errorf("invalid item quantity in execute response: %w", err)
			}
			items = append(items, Item{
				ProductID: it.SKU,
				Name:      it.Name,
				Quantity:  qty,
				UnitPrice: price,
			})
		}
	}

	payerEmail := ""
	if executed.Payer.PayerInfo != nil {
		payerEmail = executed.Payer.PayerInfo.Email
	}

	c.logger.Info("Payment executed",
		zap.String("payment_id", paymentID),
		zap.String("state", executed.State))

	return &ExecutedPayment{
		PaymentID:  paymentID,
		PayerEmail: payerEmail,
		Items:      items,
		Total:      total,
		State:      executed.State,
	}, nil
}

// doJSON performs an authenticated JSON request and decodes a 2xx response
// into out. Returns the HTTP status and raw body text for error reporting.
func (c *PayPalClient) doJSON(ctx context.Context, method, path string, in, out interface{}) (int, string, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return 0, "", err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, string(raw), fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, string(raw), nil
}

// getAccessToken returns a cached OAuth2 token, fetching a new one when
// the cached token is within a minute of expiry.
func (c *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request rejected: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
