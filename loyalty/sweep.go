package loyalty

import "fmt"

// SweepSummary reports what a daily sweep run accomplished. Individual
// step failures are collected rather than aborting the sweep, so one
// bad step does not starve the others.
type SweepSummary struct {
	ReferralsPaid      int      `json:"referrals_paid"`
	AccountsExpired    int      `json:"accounts_expired"`
	CodesIssued        int      `json:"codes_issued"`
	RedemptionsExpired int      `json:"redemptions_expired"`
	Errors             []string `json:"errors,omitempty"`
}

// RunDailySweep executes the scheduled maintenance in order: referral
// payouts, mile expiration, pending discount-code issuance retries,
// and redemption expiry. Safe to invoke more than once per day; every
// mutation inside is idempotency-keyed or status-guarded.
func (s *Service) RunDailySweep() SweepSummary {
	var summary SweepSummary

	paid, err := s.ProcessReferrals()
	summary.ReferralsPaid = paid
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("referrals: %v", err))
	}

	expired, err := s.ExpireMiles()
	summary.AccountsExpired = expired
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("expiration: %v", err))
	}

	issued, err := s.RetryPendingIssuance()
	summary.CodesIssued = issued
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("issuance retry: %v", err))
	}

	lapsed, err := s.ExpireRedemptions()
	summary.RedemptionsExpired = lapsed
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("redemption expiry: %v", err))
	}

	return summary
}
