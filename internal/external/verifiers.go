package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"crixen/internal/config"
	"crixen/internal/types"
)

// pingPayTimestampTolerance bounds how old a signed PingPay event may be
// before it is rejected as a possible replay.
const pingPayTimestampTolerance = 5 * time.Minute

// WebhookVerifier authenticates an inbound webhook against the signature
// headers of its provider.
type WebhookVerifier interface {
	Verify(r *http.Request, body []byte) error
}

// HotPayVerifier checks the X-Hotpay-Signature header: a hex HMAC-SHA256 of
// the raw body under the shared webhook secret.
type HotPayVerifier struct {
	secret types.SecretString
}

// NewHotPayVerifier builds a verifier from billing config.
func NewHotPayVerifier(cfg config.BillingConfig) *HotPayVerifier {
	return &HotPayVerifier{secret: cfg.HotPayWebhookSecret}
}

func (v *HotPayVerifier) Verify(r *http.Request, body []byte) error {
	// No secret configured means local development; the loader rejects this
	// combination in deployed environments.
	if !v.secret.IsSet() {
		return nil
	}

	sig := r.Header.Get("X-Hotpay-Signature")
	if sig == "" {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "missing webhook signature")
	}

	if !verifyHMAC(v.secret.Reveal(), body, sig) {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "webhook signature mismatch")
	}
	return nil
}

// PingPayVerifier checks the X-Pingpay-Signature header: a hex HMAC-SHA256 of
// "<timestamp>.<body>" under the shared secret, with the unix timestamp taken
// from X-Pingpay-Timestamp and bounded by a replay tolerance.
type PingPayVerifier struct {
	secret types.SecretString
	now    func() time.Time
}

// NewPingPayVerifier builds a verifier from billing config.
func NewPingPayVerifier(cfg config.BillingConfig) *PingPayVerifier {
	return &PingPayVerifier{secret: cfg.PingPayWebhookSecret, now: time.Now}
}

// WithNow overrides the verifier clock for tests.
func (v *PingPayVerifier) WithNow(now func() time.Time) *PingPayVerifier {
	v.now = now
	return v
}

func (v *PingPayVerifier) Verify(r *http.Request, body []byte) error {
	if !v.secret.IsSet() {
		return nil
	}

	sig := r.Header.Get("X-Pingpay-Signature")
	ts := r.Header.Get("X-Pingpay-Timestamp")
	if sig == "" || ts == "" {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "missing webhook signature headers")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return types.WrapAppError(types.ErrCodeAuthSignatureInvalid, "invalid webhook timestamp", err)
	}
	age := v.now().UTC().Sub(time.Unix(unix, 0))
	if age > pingPayTimestampTolerance || age < -pingPayTimestampTolerance {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "webhook timestamp outside tolerance")
	}

	signed := append([]byte(ts+"."), body...)
	if !verifyHMAC(v.secret.Reveal(), signed, sig) {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "webhook signature mismatch")
	}
	return nil
}

// verifyHMAC compares the expected HMAC-SHA256 of payload against the given
// hex signature in constant time.
func verifyHMAC(secret string, payload []byte, hexSig string) bool {
	given, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), given)
}

// SignHMAC computes the hex HMAC-SHA256 of payload. Exported for tests and
// local tooling that simulates provider deliveries.
func SignHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
