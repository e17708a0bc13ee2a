// Package signature generates and verifies the HMAC signatures shared with
// the wallet gateways and inbound webhooks. The canonical payload layouts are
// part of each gateway's integration contract: sign and verify sites must
// concatenate the same fields in the same order.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of the canonical payload.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a caller-supplied signature in constant time. Naive string
// comparison is a timing side channel and must not be used here.
func Verify(payload, sig, secret string) bool {
	expected, err := hex.DecodeString(Sign(payload, secret))
	if err != nil {
		return false
	}
	supplied, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, supplied)
}

// WalletRedirectPayload is the field order for outgoing wallet redirects:
// transaction id, order id, amount, currency.
func WalletRedirectPayload(transactionID, orderID, amount, currency string) string {
	return strings.Join([]string{transactionID, orderID, amount, currency}, "|")
}

// WalletCallbackPayload is the field order for inbound wallet callbacks:
// transaction id, order id, amount, status.
func WalletCallbackPayload(transactionID, orderID, amount, status string) string {
	return strings.Join([]string{transactionID, orderID, amount, status}, "|")
}
