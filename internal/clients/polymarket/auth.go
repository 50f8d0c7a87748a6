package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// l2Headers builds the CLOB L2 auth headers. The HMAC message is
// timestamp + method + requestPath [+ body]; the secret is base64 in any of
// the common alphabets.
func l2Headers(now time.Time, apiKey, secret, passphrase, method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	sig, err := buildHMAC(secret, timestamp, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    apiKey,
		"POLY_PASSPHRASE": passphrase,
	}, nil
}

func buildHMAC(secret, timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
