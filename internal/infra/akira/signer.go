package akira

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HMACSigner signs auth nonces with an HMAC-SHA256 over the configured key.
// It stands in for the venue's curve signer behind the domain.Signer interface.
type HMACSigner struct {
	account    string
	privateKey string
}

// NewHMACSigner creates a signer for account.
func NewHMACSigner(account, privateKey string) *HMACSigner {
	return &HMACSigner{
		account:    account,
		privateKey: privateKey,
	}
}

// Sign returns the hex signature of message.
func (s *HMACSigner) Sign(message string) (string, error) {
	if s.privateKey == "" {
		return "", errors.New("signer: empty private key")
	}
	return computeHmacSha256(message, s.privateKey), nil
}

// Account returns the signer address.
func (s *HMACSigner) Account() string {
	return s.account
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
