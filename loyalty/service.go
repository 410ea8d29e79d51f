package loyalty

import (
	"crypto/rand"

	"atlas-backend/shopify"

	"gorm.io/gorm"
)

// SignupBonusMiles is the flat credit for newly enrolled members.
const SignupBonusMiles = 100

// ReferralBonusMiles is the flat credit paid to a referrer once the
// referred account's first paid order clears the fraud buffer.
const ReferralBonusMiles = 250

// Service owns all loyalty ledger operations. It holds no in-process
// state between requests; every coordination point goes through the
// database (unique indexes and conditional updates), so concurrent
// serverless-style invocations are safe.
type Service struct {
	DB     *gorm.DB
	Issuer shopify.DiscountIssuer
}

func NewService(db *gorm.DB, issuer shopify.DiscountIssuer) *Service {
	return &Service{DB: db, Issuer: issuer}
}

// referralCodeAlphabet omits ambiguous characters (0/O, 1/I/L) since
// codes are typed and shared by hand.
const referralCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const referralCodeLength = 8

func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, referralCodeLength)
	for i, b := range buf {
		code[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(code), nil
}
