package shopify

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DiscountIssuer creates discount codes on the commerce platform for
// redeemed rewards. Implemented by AdminClient in production and by a
// test double in handler and engine tests.
type DiscountIssuer interface {
	CreateDiscountCode(rewardType, rewardName, redemptionID string, validUntil time.Time) (string, error)
}

// AdminClient talks to the Shopify Admin API. Configure with
// SHOPIFY_SHOP_DOMAIN and SHOPIFY_ADMIN_TOKEN.
type AdminClient struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	HTTPClient  *http.Client
}

func NewAdminClient() *AdminClient {
	return &AdminClient{
		ShopDomain:  os.Getenv("SHOPIFY_SHOP_DOMAIN"),
		AccessToken: os.Getenv("SHOPIFY_ADMIN_TOKEN"),
		APIVersion:  "2024-01",
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// codePrefixes map reward types to the code prefix customers see at
// checkout.
var codePrefixes = map[string]string{
	"atlas_credit":    "ATLAS",
	"free_shipping":   "VOYAGE",
	"early_access":    "EARLY",
	"monogram_credit": "MONO",
}

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateCode(rewardType string) (string, error) {
	prefix, ok := codePrefixes[rewardType]
	if !ok {
		prefix = "CLUB"
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := make([]byte, 8)
	for i, b := range buf {
		suffix[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return prefix + "-" + string(suffix), nil
}

type priceRuleRequest struct {
	PriceRule struct {
		Title             string `json:"title"`
		ValueType         string `json:"value_type"`
		Value             string `json:"value"`
		TargetType        string `json:"target_type"`
		TargetSelection   string `json:"target_selection"`
		AllocationMethod  string `json:"allocation_method"`
		CustomerSelection string `json:"customer_selection"`
		UsageLimit        int    `json:"usage_limit"`
		StartsAt          string `json:"starts_at"`
		EndsAt            string `json:"ends_at"`
	} `json:"price_rule"`
}

type priceRuleResponse struct {
	PriceRule struct {
		ID int64 `json:"id"`
	} `json:"price_rule"`
}

// CreateDiscountCode provisions a single-use discount code valid until
// the redemption's expiry. Two calls: create a price rule, then attach
// the code to it.
func (c *AdminClient) CreateDiscountCode(rewardType, rewardName, redemptionID string, validUntil time.Time) (string, error) {
	if c.ShopDomain == "" || c.AccessToken == "" {
		return "", fmt.Errorf("shopify admin client not configured")
	}

	code, err := generateCode(rewardType)
	if err != nil {
		return "", err
	}

	var rule priceRuleRequest
	rule.PriceRule.Title = fmt.Sprintf("Travel Club: %s (%s)", rewardName, redemptionID)
	rule.PriceRule.ValueType = "fixed_amount"
	rule.PriceRule.Value = "-10.0"
	rule.PriceRule.TargetType = "line_item"
	rule.PriceRule.TargetSelection = "all"
	rule.PriceRule.AllocationMethod = "across"
	rule.PriceRule.CustomerSelection = "all"
	rule.PriceRule.UsageLimit = 1
	rule.PriceRule.StartsAt = time.Now().UTC().Format(time.RFC3339)
	rule.PriceRule.EndsAt = validUntil.UTC().Format(time.RFC3339)
	if rewardType == "free_shipping" {
		rule.PriceRule.ValueType = "percentage"
		rule.PriceRule.Value = "-100.0"
		rule.PriceRule.TargetType = "shipping_line"
	}

	var created priceRuleResponse
	if err := c.post("price_rules.json", rule, &created); err != nil {
		return "", fmt.Errorf("create price rule: %w", err)
	}

	payload := map[string]map[string]string{"discount_code": {"code": code}}
	path := fmt.Sprintf("price_rules/%d/discount_codes.json", created.PriceRule.ID)
	if err := c.post(path, payload, nil); err != nil {
		return "", fmt.Errorf("create discount code: %w", err)
	}
	return code, nil
}

func (c *AdminClient) post(path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	domain := strings.TrimSuffix(c.ShopDomain, "/")
	url := fmt.Sprintf("https://%s/admin/api/%s/%s", domain, c.APIVersion, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("shopify API returned %d: %s", resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
