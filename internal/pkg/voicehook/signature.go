package voicehook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/env"
)

// replayWindow is the maximum allowed skew between a signed timestamp and
// receipt time.
const replayWindow = 300 * time.Second

// rotationGrace is how long deliveries signed with a rotated-out secret stay
// verifiable.
const rotationGrace = 24 * time.Hour

// SignatureEnforced reports whether a failed verification rejects the
// request. This is a named flag rather than an implicit environment check so
// a misconfigured deployment is visible in configuration, not just behavior.
// Default: enforced everywhere except APP_ENV=dev.
func SignatureEnforced() bool {
	return env.GetEnvBool("WEBHOOK_SIGNATURE_ENFORCED", !env.IsDev())
}

// parsedSignature is the decomposed signature header: an optional unix
// timestamp and one or more candidate signature values.
type parsedSignature struct {
	timestamp  int64
	candidates []string
}

// parseSignatureHeader handles the `t=<unix>,v1=<sig>[,v1=<sig>...]` scheme
// as well as the bare-signature form some provider versions send.
func parseSignatureHeader(header string) parsedSignature {
	out := parsedSignature{}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Only a known scheme key before the first '=' makes a part
		// key=value; anything else is a bare signature. Base64 digests end
		// in '=' padding, so checking for '=' at all would drop them.
		switch {
		case strings.HasPrefix(part, "t="):
			if ts, err := strconv.ParseInt(part[2:], 10, 64); err == nil {
				out.timestamp = ts
			}
		case strings.HasPrefix(part, "v1="):
			out.candidates = append(out.candidates, part[3:])
		default:
			out.candidates = append(out.candidates, part)
		}
	}
	return out
}

// VerifySignature validates an inbound webhook body against a shared secret.
// The HMAC-SHA256 digest is accepted in either hex or base64 encoding since
// providers are inconsistent about it. When a timestamp is present (in the
// signature header or the dedicated timestamp header) the delivery must be
// inside the replay window.
func VerifySignature(rawBody []byte, signatureHeader, timestampHeader, secret string) bool {
	return verifySignatureAt(rawBody, signatureHeader, timestampHeader, secret, time.Now())
}

func verifySignatureAt(rawBody []byte, signatureHeader, timestampHeader, secret string, now time.Time) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	parsed := parseSignatureHeader(sig)
	if ts := strings.TrimSpace(timestampHeader); ts != "" && parsed.timestamp == 0 {
		if v, err := strconv.ParseInt(ts, 10, 64); err == nil {
			parsed.timestamp = v
		}
	}
	if parsed.timestamp != 0 {
		skew := now.Sub(time.Unix(parsed.timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > replayWindow {
			return false
		}
	}
	if len(parsed.candidates) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(rawBody)
	digest := mac.Sum(nil)
	encodings := []string{
		hex.EncodeToString(digest),
		base64.StdEncoding.EncodeToString(digest),
	}

	for _, cand := range parsed.candidates {
		cand = strings.TrimSpace(cand)
		for _, want := range encodings {
			if hmac.Equal([]byte(cand), []byte(want)) {
				return true
			}
		}
	}
	return false
}

// VerifyAgentSignature checks a delivery against the agent's current secret,
// falling back to the previous secret inside the rotation grace window so
// in-flight deliveries survive a rotation.
func VerifyAgentSignature(rawBody []byte, signatureHeader, timestampHeader string, agent *models.VoiceAgent) bool {
	return verifyAgentSignatureAt(rawBody, signatureHeader, timestampHeader, agent, time.Now())
}

func verifyAgentSignatureAt(rawBody []byte, signatureHeader, timestampHeader string, agent *models.VoiceAgent, now time.Time) bool {
	if agent == nil {
		return false
	}
	if verifySignatureAt(rawBody, signatureHeader, timestampHeader, agent.Secret, now) {
		return true
	}
	if agent.PreviousSecret == "" || agent.SecretRotatedAt == nil {
		return false
	}
	if now.Sub(*agent.SecretRotatedAt) > rotationGrace {
		return false
	}
	return verifySignatureAt(rawBody, signatureHeader, timestampHeader, agent.PreviousSecret, now)
}
