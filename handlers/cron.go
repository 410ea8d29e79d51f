package handlers

import (
	"log"
	"net/http"
	"strings"

	"atlas-backend/loyalty"

	"github.com/gin-gonic/gin"
)

// CronHandler runs the daily loyalty sweep. The scheduler invokes it
// at-least-once, and every step is idempotency-keyed, so overlapping
// or repeated runs on the same day are harmless.
type CronHandler struct {
	Service *loyalty.Service
	Secret  string // CRON_SECRET
}

func (h *CronHandler) Run(c *gin.Context) {
	if h.Secret != "" {
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+h.Secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid cron secret"})
			return
		}
	}

	summary := h.Service.RunDailySweep()
	status := http.StatusOK
	if len(summary.Errors) > 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, summary)
}

// RunDailySweep is the in-process scheduler entry point; it logs the
// summary instead of returning it.
func RunDailySweep(service *loyalty.Service) {
	summary := service.RunDailySweep()
	if len(summary.Errors) > 0 {
		log.Printf("loyalty sweep finished with errors: %s", strings.Join(summary.Errors, "; "))
		return
	}
	log.Printf("loyalty sweep: %d referrals paid, %d accounts expired, %d codes issued, %d redemptions expired",
		summary.ReferralsPaid, summary.AccountsExpired, summary.CodesIssued, summary.RedemptionsExpired)
}
