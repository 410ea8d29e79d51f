package loyalty

import "errors"

// Business-rule failures surfaced to API routes, which translate them
// into 4xx responses with stable error code strings. Idempotency-key
// and stamp duplicates are not in this list: they are normal outcomes
// of at-least-once delivery and are reported as success.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyReferred     = errors.New("account already referred")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrTierTooLow          = errors.New("tier too low for reward")
	ErrInsufficientMiles   = errors.New("insufficient miles")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrRewardInactive      = errors.New("reward is not active")
	ErrDestinationNotFound = errors.New("destination not found")
)
