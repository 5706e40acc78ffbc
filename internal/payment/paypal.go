package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/michaelsminev-ctrl/alosbanque-backend/internal/money"
)

type PayPalConfig struct {
	ClientID     string        `env:"PAYPAL_CLIENT_ID" envDefault:""`
	ClientSecret string        `env:"PAYPAL_CLIENT_SECRET" envDefault:""`
	BaseURL      string        `env:"PAYPAL_BASE" envDefault:"https://api-m.sandbox.paypal.com"`
	ReturnURL    string        `env:"PAYPAL_RETURN_URL" envDefault:"http://localhost:5173/paypal-return"`
	CancelURL    string        `env:"PAYPAL_CANCEL_URL" envDefault:"http://localhost:5173/paypal-cancel"`
	Timeout      time.Duration `env:"PAYPAL_TIMEOUT" envDefault:"30s"`
}

// PayPal implements Provider against the PayPal Orders v2 API with a
// cached client-credentials token, refreshed 60 seconds before expiry.
type PayPal struct {
	cfg    PayPalConfig
	client *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

var _ Provider = (*PayPal)(nil)

func NewPayPal(cfg PayPalConfig) *PayPal {
	return &PayPal{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return "", fmt.Errorf("%w: missing PayPal credentials", ErrProvider)
	}

	if p.token != "" && time.Now().Before(p.tokenExp) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}

	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	err = p.do(req, &body)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}

	p.token = body.AccessToken
	p.tokenExp = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)

	return p.token, nil
}

func (p *PayPal) CreateOrder(ctx context.Context, amountCents int64, description string) (*Order, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"description": truncate(description, 120),
			"amount": map[string]string{
				"currency_code": "EUR",
				"value":         money.FormatCents(amountCents),
			},
		}},
		"application_context": map[string]string{
			"return_url": p.cfg.ReturnURL,
			"cancel_url": p.cfg.CancelURL,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var body struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}

	err = p.do(req, &body)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order := &Order{Ref: body.ID}

	for _, l := range body.Links {
		if l.Rel == "approve" {
			order.ApproveURL = l.Href
		}
	}

	if order.Ref == "" || order.ApproveURL == "" {
		return nil, fmt.Errorf("%w: order response missing id or approve link", ErrProvider)
	}

	return order, nil
}

func (p *PayPal) CaptureOrder(ctx context.Context, ref string) (*Capture, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(ref)+"/capture", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build capture request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var body struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					Amount struct {
						Value string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	err = p.do(req, &body)
	if err != nil {
		return nil, fmt.Errorf("capture order: %w", err)
	}

	capture := &Capture{Status: strings.ToLower(body.Status)}

	if len(body.PurchaseUnits) > 0 && len(body.PurchaseUnits[0].Payments.Captures) > 0 {
		value := body.PurchaseUnits[0].Payments.Captures[0].Amount.Value

		cents, perr := money.ParseCents(value)
		if perr != nil {
			return nil, fmt.Errorf("%w: captured amount %q unparsable", ErrProvider, value)
		}

		capture.AmountCents = cents
	}

	return capture, nil
}

func (p *PayPal) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

		return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, raw)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
