package voicehook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/velora-app/velora/app/models"
)

func signHex(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signBase64(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_SchemeHeader(t *testing.T) {
	payload := []byte(`{"call_id":"C1"}`)
	secret := "whsec_test"
	now := time.Now()
	ts := now.Unix()

	header := fmt.Sprintf("t=%d,v1=%s", ts, signHex(payload, secret))
	if !verifySignatureAt(payload, header, "", secret, now) {
		t.Fatalf("expected hex v1 signature to validate")
	}

	header = fmt.Sprintf("t=%d,v1=%s", ts, signBase64(payload, secret))
	if !verifySignatureAt(payload, header, "", secret, now) {
		t.Fatalf("expected base64 v1 signature to validate")
	}

	// Extra stale candidates must not break a valid one.
	header = fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", ts, signHex(payload, secret))
	if !verifySignatureAt(payload, header, "", secret, now) {
		t.Fatalf("expected any-candidate match to validate")
	}
}

func TestVerifySignature_BareSignature(t *testing.T) {
	payload := []byte(`{"call_id":"C1"}`)
	secret := "whsec_test"

	if !VerifySignature(payload, signHex(payload, secret), "", secret) {
		t.Fatalf("expected bare hex signature to validate")
	}
	if !VerifySignature(payload, signBase64(payload, secret), "", secret) {
		t.Fatalf("expected bare base64 signature to validate")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	payload := []byte(`{"call_id":"C1"}`)
	secret := "whsec_test"
	sig := signHex(payload, secret)

	flipped := append([]byte(nil), payload...)
	flipped[0] ^= 0x01
	if VerifySignature(flipped, sig, "", secret) {
		t.Fatalf("expected one-byte-flipped body to fail verification")
	}
}

func TestVerifySignature_ReplayWindow(t *testing.T) {
	payload := []byte(`{"call_id":"C1"}`)
	secret := "whsec_test"
	now := time.Now()

	stale := now.Add(-301 * time.Second).Unix()
	header := fmt.Sprintf("t=%d,v1=%s", stale, signHex(payload, secret))
	if verifySignatureAt(payload, header, "", secret, now) {
		t.Fatalf("expected timestamp older than 300s to fail")
	}

	edge := now.Add(-299 * time.Second).Unix()
	header = fmt.Sprintf("t=%d,v1=%s", edge, signHex(payload, secret))
	if !verifySignatureAt(payload, header, "", secret, now) {
		t.Fatalf("expected timestamp inside window to pass")
	}

	// Timestamp from the dedicated header is honored too.
	if verifySignatureAt(payload, signHex(payload, secret), fmt.Sprintf("%d", stale), secret, now) {
		t.Fatalf("expected stale timestamp header to fail")
	}
}

func TestVerifySignature_EmptyInputs(t *testing.T) {
	payload := []byte(`{}`)
	if VerifySignature(payload, "", "", "secret") {
		t.Fatalf("empty signature must fail")
	}
	if VerifySignature(payload, signHex(payload, "secret"), "", "") {
		t.Fatalf("empty secret must fail")
	}
}

func TestVerifyAgentSignature_RotationGrace(t *testing.T) {
	payload := []byte(`{"call_id":"C1"}`)
	now := time.Now()
	rotatedRecently := now.Add(-1 * time.Hour)
	rotatedLongAgo := now.Add(-25 * time.Hour)

	agent := &models.VoiceAgent{
		Secret:          "new-secret",
		PreviousSecret:  "old-secret",
		SecretRotatedAt: &rotatedRecently,
	}

	oldSig := signHex(payload, "old-secret")
	if !verifyAgentSignatureAt(payload, oldSig, "", agent, now) {
		t.Fatalf("expected previous secret to verify within grace window")
	}
	if !verifyAgentSignatureAt(payload, signHex(payload, "new-secret"), "", agent, now) {
		t.Fatalf("expected current secret to verify")
	}

	agent.SecretRotatedAt = &rotatedLongAgo
	if verifyAgentSignatureAt(payload, oldSig, "", agent, now) {
		t.Fatalf("expected previous secret to stop verifying after grace window")
	}
}

func TestSignatureEnforced(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	if SignatureEnforced() {
		t.Fatalf("dev environment must default to unenforced")
	}

	t.Setenv("WEBHOOK_SIGNATURE_ENFORCED", "true")
	if !SignatureEnforced() {
		t.Fatalf("explicit flag must override the environment default")
	}

	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_SIGNATURE_ENFORCED", "false")
	if SignatureEnforced() {
		t.Fatalf("explicit flag must disable enforcement in prod")
	}
}
