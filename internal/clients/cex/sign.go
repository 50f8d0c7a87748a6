// Package cex adapts the centralized perp exchanges (Binance USDT-M futures,
// Bybit v5, MEXC contract) to the uniform venue interfaces. All three are
// read-only in the core and share HMAC-SHA256 request signing.
package cex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hmacHex computes the hex-encoded HMAC-SHA256 of message under secret, the
// signature form all three exchanges use.
func hmacHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
