package handlers

import (
	"net/http"

	"atlas-backend/models"
	"atlas-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogHandler serves the static program configuration: reward
// catalog, tier table, and destinations. Public routes return only
// active rows; admin routes manage the full set.
type CatalogHandler struct {
	DB *gorm.DB
}

func (h *CatalogHandler) GetRewards(c *gin.Context) {
	var rewards []models.Reward
	if err := h.DB.Where("is_active = ?", true).Order("miles_cost ASC").Find(&rewards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rewards"})
		return
	}
	c.JSON(http.StatusOK, rewards)
}

func (h *CatalogHandler) GetTiers(c *gin.Context) {
	var tiers []models.Tier
	if err := h.DB.Order("rank ASC").Find(&tiers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tiers"})
		return
	}
	c.JSON(http.StatusOK, tiers)
}

func (h *CatalogHandler) GetDestinations(c *gin.Context) {
	var destinations []models.Destination
	if err := h.DB.Where("is_active = ?", true).Order("name ASC").Find(&destinations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch destinations"})
		return
	}
	c.JSON(http.StatusOK, destinations)
}

// ==================== Admin: rewards ====================

func (h *CatalogHandler) CreateReward(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		MilesCost   int    `json:"miles_cost" binding:"required,gt=0"`
		MinTierID   string `json:"min_tier_id"`
		RewardType  string `json:"reward_type" binding:"required"`
		Icon        string `json:"icon"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	minTier := req.MinTierID
	if minTier == "" {
		minTier = "initiate"
	}
	var tier models.Tier
	if err := h.DB.Where("id = ?", minTier).First(&tier).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown min_tier_id"})
		return
	}

	reward := models.Reward{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		MilesCost:   req.MilesCost,
		MinTierID:   minTier,
		RewardType:  req.RewardType,
		Icon:        req.Icon,
		IsActive:    true,
	}
	if err := h.DB.Create(&reward).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create reward"})
		return
	}
	c.JSON(http.StatusCreated, reward)
}

func (h *CatalogHandler) UpdateReward(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward
	if err := h.DB.Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		MilesCost   *int    `json:"miles_cost"`
		MinTierID   *string `json:"min_tier_id"`
		Icon        *string `json:"icon"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.MilesCost != nil {
		if *req.MilesCost <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "miles_cost must be positive"})
			return
		}
		updates["miles_cost"] = *req.MilesCost
	}
	if req.MinTierID != nil {
		var tier models.Tier
		if err := h.DB.Where("id = ?", *req.MinTierID).First(&tier).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown min_tier_id"})
			return
		}
		updates["min_tier_id"] = *req.MinTierID
	}
	if req.Icon != nil {
		updates["icon"] = *req.Icon
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&reward).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reward"})
			return
		}
	}

	h.DB.Where("id = ?", id).First(&reward)
	c.JSON(http.StatusOK, reward)
}

func (h *CatalogHandler) DeleteReward(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward
	if err := h.DB.Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	if err := h.DB.Delete(&reward).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete reward"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reward deleted successfully"})
}

// ==================== Admin: destinations ====================

func (h *CatalogHandler) CreateDestination(c *gin.Context) {
	var req struct {
		Handle    string `json:"handle" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Region    string `json:"region"`
		StampIcon string `json:"stamp_icon"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	destination := models.Destination{
		ID:        uuid.New(),
		Handle:    req.Handle,
		Name:      req.Name,
		Region:    req.Region,
		StampIcon: req.StampIcon,
		IsActive:  true,
	}
	if err := h.DB.Create(&destination).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Destination handle already exists"})
		return
	}
	c.JSON(http.StatusCreated, destination)
}

func (h *CatalogHandler) UpdateDestination(c *gin.Context) {
	id := c.Param("id")
	var destination models.Destination
	if err := h.DB.Where("id = ?", id).First(&destination).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Destination not found"})
		return
	}

	var req struct {
		Name      *string `json:"name"`
		Region    *string `json:"region"`
		StampIcon *string `json:"stamp_icon"`
		IsActive  *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Region != nil {
		updates["region"] = *req.Region
	}
	if req.StampIcon != nil {
		updates["stamp_icon"] = *req.StampIcon
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&destination).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update destination"})
			return
		}
	}

	h.DB.Where("id = ?", id).First(&destination)
	c.JSON(http.StatusOK, destination)
}

// ==================== Admin: redemptions ====================

func (h *CatalogHandler) ListRedemptions(c *gin.Context) {
	var redemptions []models.Redemption
	query := h.DB.Preload("Reward").Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&redemptions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch redemptions"})
		return
	}
	c.JSON(http.StatusOK, redemptions)
}

// MarkRedemptionUsed flips a pending redemption to used once its
// discount code has been consumed at checkout. Guarded on the current
// status so a double-click cannot flip an expired redemption back.
func (h *CatalogHandler) MarkRedemptionUsed(c *gin.Context) {
	id := c.Param("id")
	var redemption models.Redemption
	if err := h.DB.Where("id = ?", id).First(&redemption).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Redemption not found"})
		return
	}

	res := h.DB.Model(&models.Redemption{}).
		Where("id = ? AND status = ?", id, models.RedemptionPending).
		Update("status", models.RedemptionUsed)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update redemption"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Redemption is not pending"})
		return
	}

	h.DB.Preload("Reward").Where("id = ?", id).First(&redemption)
	c.JSON(http.StatusOK, redemption)
}
