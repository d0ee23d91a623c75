package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the body signature on every delivery.
const SignatureHeader = "X-Webhook-Signature"

// SignBody computes the lowercase-hex HMAC-SHA256 of the webhook body
// under the team's API password. Merchants recompute it over the raw
// request body to authenticate the call.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
