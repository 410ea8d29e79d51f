package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"atlas-backend/loyalty"
	"atlas-backend/models"
	"atlas-backend/shopify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookHandler adapts commerce platform events into ledger calls.
// Delivery is at-least-once and may be out of order, so every mutation
// it triggers is idempotency-keyed and business-rule no-ops (duplicate
// accrual, repeated stamps, already-claimed referrals) return 200.
type WebhookHandler struct {
	DB      *gorm.DB
	Service *loyalty.Service
	Secret  string // SHOPIFY_WEBHOOK_SECRET
}

type webhookCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type webhookLineItem struct {
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	Properties []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"properties"`
}

type orderPayload struct {
	ID         int64             `json:"id"`
	OrderID    int64             `json:"order_id"` // set on refund payloads
	TotalPrice string            `json:"total_price"`
	Customer   webhookCustomer   `json:"customer"`
	LineItems  []webhookLineItem `json:"line_items"`
}

// verifyAndBind checks the HMAC signature over the raw body before
// decoding. Signature verification must see the exact delivered bytes.
func (h *WebhookHandler) verifyAndBind(c *gin.Context, out interface{}) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return false
	}

	signature := c.GetHeader("X-Shopify-Hmac-Sha256")
	if !shopify.VerifyWebhookSignature(h.Secret, body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return false
	}
	return true
}

// destinationHandles extracts the distinct destination handles tagged
// on the order's line items by the storefront.
func destinationHandles(items []webhookLineItem) []string {
	seen := map[string]bool{}
	var handles []string
	for _, item := range items {
		for _, prop := range item.Properties {
			if prop.Name == "destination" && prop.Value != "" && !seen[prop.Value] {
				seen[prop.Value] = true
				handles = append(handles, prop.Value)
			}
		}
	}
	return handles
}

// OrderPaid credits purchase miles and evaluates stamps and quests.
// The account is enrolled on the fly for first-time buyers.
func (h *WebhookHandler) OrderPaid(c *gin.Context) {
	var payload orderPayload
	if !h.verifyAndBind(c, &payload) {
		return
	}
	if payload.Customer.ID == 0 {
		// Guest checkout: no member identity, nothing to credit.
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no customer"})
		return
	}

	account, _, err := h.Service.Enroll(
		strconv.FormatInt(payload.Customer.ID, 10),
		payload.Customer.Email,
		payload.Customer.FirstName,
		payload.Customer.LastName,
	)
	if err != nil {
		log.Printf("order paid webhook: enroll failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process order"})
		return
	}

	total, err := strconv.ParseFloat(payload.TotalPrice, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order total"})
		return
	}

	orderID := strconv.FormatInt(payload.ID, 10)
	entry, applied, err := h.Service.EarnMiles(account.ID, models.TxEarnPurchase, int(total),
		"Order "+orderID, loyalty.EarnOptions{IdempotencyKey: loyalty.OrderPaidKey(orderID)})
	if err != nil {
		log.Printf("order paid webhook: accrual failed for order %s: %v", orderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process order"})
		return
	}

	stamps := h.recordDestinations(account.ID, orderID, payload.LineItems)

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"applied":        applied,
		"miles_earned":   entry.MilesAmount,
		"stamps_awarded": stamps,
	})
}

// OrderFulfilled re-evaluates stamps and quests only; miles were
// credited on payment. Duplicate and out-of-order deliveries are
// harmless because stamping is constraint-guarded and quest progress
// is recomputed from ledger facts.
func (h *WebhookHandler) OrderFulfilled(c *gin.Context) {
	var payload orderPayload
	if !h.verifyAndBind(c, &payload) {
		return
	}
	if payload.Customer.ID == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no customer"})
		return
	}

	account, err := h.Service.AccountByCustomerID(strconv.FormatInt(payload.Customer.ID, 10))
	if errors.Is(err, loyalty.ErrAccountNotFound) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not enrolled"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process fulfilment"})
		return
	}

	orderID := strconv.FormatInt(payload.ID, 10)
	stamps := h.recordDestinations(account.ID, orderID, payload.LineItems)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stamps_awarded": stamps})
}

// OrderRefunded reverses the miles credited for the order via an
// adjust entry keyed on the order, capped at the account's available
// balance. Repeated refund deliveries are no-ops.
func (h *WebhookHandler) OrderRefunded(c *gin.Context) {
	var payload orderPayload
	if !h.verifyAndBind(c, &payload) {
		return
	}

	orderID := payload.OrderID
	if orderID == 0 {
		orderID = payload.ID
	}
	if orderID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	reversed, err := h.Service.ReverseOrderMiles(strconv.FormatInt(orderID, 10))
	if err != nil {
		log.Printf("order refunded webhook: reversal failed for order %d: %v", orderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process refund"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "miles_reversed": reversed})
}

// CustomerCreated enrolls the new customer. Re-delivery returns the
// existing account without a second signup bonus.
func (h *WebhookHandler) CustomerCreated(c *gin.Context) {
	var payload webhookCustomer
	if !h.verifyAndBind(c, &payload) {
		return
	}
	if payload.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	account, enrolled, err := h.Service.Enroll(
		strconv.FormatInt(payload.ID, 10), payload.Email, payload.FirstName, payload.LastName)
	if err != nil {
		log.Printf("customer created webhook: enroll failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enroll customer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "enrolled": enrolled, "account_id": account.ID})
}

// recordDestinations resolves line-item destination handles and stamps
// each one. Unknown handles are logged and skipped; they must not fail
// the webhook.
func (h *WebhookHandler) recordDestinations(accountID uuid.UUID, orderID string, items []webhookLineItem) int {
	stamps := 0
	for _, handle := range destinationHandles(items) {
		var destination models.Destination
		err := h.DB.Where("handle = ? AND is_active = ?", handle, true).First(&destination).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("order %s references unknown destination %q; skipping", orderID, handle)
			continue
		}
		if err != nil {
			log.Printf("order %s: destination lookup failed for %q: %v", orderID, handle, err)
			continue
		}

		awarded, err := h.Service.RecordPurchase(accountID, destination.ID, orderID)
		if err != nil {
			log.Printf("order %s: stamp recording failed for %q: %v", orderID, handle, err)
			continue
		}
		if awarded {
			stamps++
		}
	}
	return stamps
}
