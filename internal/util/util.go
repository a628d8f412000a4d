package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NormalizeBool accepts the usual spreadsheet spellings of a yes/no cell.
func NormalizeBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "yes", "true", "1", "y", "paid":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidHMAC compares sig against the expected signature in constant time.
func ValidHMAC(secret, msg, sig string) bool {
	expected := HMACSHA256Hex(secret, msg)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(sig))))
}

// PaymentSignature is the gateway signature over an order/payment pair.
func PaymentSignature(secret, orderID, paymentID string) string {
	return HMACSHA256Hex(secret, orderID+"|"+paymentID)
}
