package handlers

import (
	"errors"
	"net/http"

	"atlas-backend/loyalty"
	"atlas-backend/models"
	"atlas-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoyaltyHandler struct {
	DB      *gorm.DB
	Service *loyalty.Service
}

// customerID pulls the authenticated Shopify customer id set by the
// auth middleware.
func customerID(c *gin.Context) (string, bool) {
	id, exists := c.Get("customer_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return id.(string), true
}

// Enroll creates the member's loyalty account, optionally claiming a
// referral code in the same call. Idempotent: re-enrolling returns the
// existing account with enrolled=false and no second signup bonus.
func (h *LoyaltyHandler) Enroll(c *gin.Context) {
	custID, ok := customerID(c)
	if !ok {
		return
	}

	var req struct {
		Email        string `json:"email" binding:"required,email"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	account, enrolled, err := h.Service.Enroll(custID, req.Email, req.FirstName, req.LastName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enroll"})
		return
	}

	claimed := false
	if enrolled && req.ReferralCode != "" {
		err := h.Service.ClaimReferral(account.ID, req.ReferralCode)
		switch {
		case err == nil:
			claimed = true
		case errors.Is(err, loyalty.ErrAlreadyReferred), errors.Is(err, loyalty.ErrInvalidReferralCode):
			// Enrollment stands; a bad or repeated code is not fatal.
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enroll"})
			return
		}
		// Re-read so the response reflects the referral link.
		h.DB.Where("id = ?", account.ID).First(account)
	}

	c.JSON(http.StatusOK, gin.H{
		"enrolled":         enrolled,
		"referral_claimed": claimed,
		"account":          account,
	})
}

// Status returns the MemberStatus aggregate the storefront renders.
func (h *LoyaltyHandler) Status(c *gin.Context) {
	custID, ok := customerID(c)
	if !ok {
		return
	}

	status, err := h.Service.GetMemberStatus(custID)
	if err != nil {
		if errors.Is(err, loyalty.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enrolled", "code": "account_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load member status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Redeem exchanges miles for a reward and returns the redemption,
// including the discount code when issuance succeeded inline.
func (h *LoyaltyHandler) Redeem(c *gin.Context) {
	custID, ok := customerID(c)
	if !ok {
		return
	}

	var req struct {
		RewardID string `json:"reward_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}
	rewardID, err := uuid.Parse(req.RewardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reward_id"})
		return
	}

	account, err := h.Service.AccountByCustomerID(custID)
	if err != nil {
		if errors.Is(err, loyalty.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enrolled", "code": "account_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem"})
		return
	}

	redemption, err := h.Service.Redeem(account.ID, rewardID)
	if err != nil {
		switch {
		case errors.Is(err, loyalty.ErrRewardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found", "code": "reward_not_found"})
		case errors.Is(err, loyalty.ErrRewardInactive):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Reward is no longer available", "code": "reward_inactive"})
		case errors.Is(err, loyalty.ErrTierTooLow):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Your tier is too low for this reward", "code": "tier_too_low"})
		case errors.Is(err, loyalty.ErrInsufficientMiles):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Not enough miles", "code": "insufficient_miles"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem"})
		}
		return
	}

	c.JSON(http.StatusCreated, redemption)
}

// Referral claims a referral code for the authenticated member. A code
// the member already claimed once is reported as claimed=false, not an
// error.
func (h *LoyaltyHandler) Referral(c *gin.Context) {
	custID, ok := customerID(c)
	if !ok {
		return
	}

	var req struct {
		ReferralCode string `json:"referral_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	account, err := h.Service.AccountByCustomerID(custID)
	if err != nil {
		if errors.Is(err, loyalty.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enrolled", "code": "account_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim referral"})
		return
	}

	err = h.Service.ClaimReferral(account.ID, req.ReferralCode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"claimed": true})
	case errors.Is(err, loyalty.ErrAlreadyReferred):
		c.JSON(http.StatusOK, gin.H{"claimed": false, "code": "already_referred"})
	case errors.Is(err, loyalty.ErrInvalidReferralCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid referral code", "code": "invalid_referral_code"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim referral"})
	}
}

// Redemptions lists the member's redemption history, newest first.
func (h *LoyaltyHandler) Redemptions(c *gin.Context) {
	custID, ok := customerID(c)
	if !ok {
		return
	}

	account, err := h.Service.AccountByCustomerID(custID)
	if err != nil {
		if errors.Is(err, loyalty.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not enrolled", "code": "account_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch redemptions"})
		return
	}

	var redemptions []models.Redemption
	if err := h.DB.Preload("Reward").Where("account_id = ?", account.ID).
		Order("created_at DESC").Find(&redemptions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch redemptions"})
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

// Earn is the admin pass-through into the accrual engine, used for
// backfills and support adjustments. Only earn types are accepted
// here; redemptions and expirations go through their own engines.
func (h *LoyaltyHandler) Earn(c *gin.Context) {
	var req struct {
		ShopifyCustomerID string `json:"shopify_customer_id" binding:"required"`
		Type              string `json:"type" binding:"required"`
		Amount            int    `json:"amount" binding:"required,gt=0"`
		Description       string `json:"description"`
		IdempotencyKey    string `json:"idempotency_key" binding:"required"`
		Metadata          string `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	switch req.Type {
	case models.TxEarnPurchase, models.TxEarnSignupBonus, models.TxEarnReferral, models.TxEarnQuest:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid earn type"})
		return
	}

	account, err := h.Service.AccountByCustomerID(req.ShopifyCustomerID)
	if err != nil {
		if errors.Is(err, loyalty.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found", "code": "account_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to earn miles"})
		return
	}

	entry, applied, err := h.Service.EarnMiles(account.ID, req.Type, req.Amount, req.Description,
		loyalty.EarnOptions{IdempotencyKey: req.IdempotencyKey, Metadata: req.Metadata})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to earn miles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": applied, "transaction": entry})
}
