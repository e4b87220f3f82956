// ABOUTME: HMAC signing and verification for platform webhook deliveries
// ABOUTME: v0 scheme over "v0:<timestamp>:<body>" with a bounded clock skew

package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Signature errors
var (
	ErrBadSignature   = errors.New("signature mismatch")
	ErrStaleTimestamp = errors.New("signature timestamp outside allowed skew")
)

const maxSignatureSkew = 5 * time.Minute

// SignBody computes the v0 signature for a webhook body. timestamp is
// unix seconds as a decimal string.
func SignBody(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery's signature and timestamp. The
// timestamp bound defeats replay of captured deliveries; exact replays
// inside the window are caught by the dedupe ledger downstream.
func VerifySignature(secret []byte, timestamp, signature string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > maxSignatureSkew || skew < -maxSignatureSkew {
		return ErrStaleTimestamp
	}

	expected := SignBody(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
