package security

import (
	"errors"
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"object":"page","entry":[]}`)

	sig1 := Sign(payload, "secret")
	sig2 := Sign(payload, "secret")
	if sig1 != sig2 {
		t.Errorf("Sign not deterministic: %q vs %q", sig1, sig2)
	}
	if len(sig1) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(sig1))
	}
	if sig1 != strings.ToLower(sig1) {
		t.Errorf("signature %q is not lowercase", sig1)
	}
	if other := Sign(payload, "other-secret"); other == sig1 {
		t.Error("different secrets produced the same signature")
	}
}

func TestVerifyHex(t *testing.T) {
	payload := []byte("callback-origin")
	sig := Sign(payload, "secret")

	res := Verify(payload, sig, "secret", FormatHex)
	if !res.Valid {
		t.Fatalf("Verify rejected a valid signature: %v", res.Err)
	}
	if res.Computed != sig {
		t.Errorf("Computed = %q, want %q", res.Computed, sig)
	}
}

func TestVerifyHexUppercase(t *testing.T) {
	payload := []byte("callback-origin")
	sig := strings.ToUpper(Sign(payload, "secret"))

	if res := Verify(payload, sig, "secret", FormatHex); !res.Valid {
		t.Errorf("Verify rejected an uppercase signature: %v", res.Err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	sig := Sign([]byte("original"), "secret")

	res := Verify([]byte("tampered"), sig, "secret", FormatHex)
	if res.Valid {
		t.Fatal("Verify accepted a signature over a different payload")
	}
	if !errors.Is(res.Err, ErrInvalidSignature) {
		t.Errorf("Err = %v, want ErrInvalidSignature", res.Err)
	}
}

func TestVerifyBitFlip(t *testing.T) {
	payload := []byte("payload")
	sig := []byte(Sign(payload, "secret"))
	// Flip one hex digit.
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}

	if res := Verify(payload, string(sig), "secret", FormatHex); res.Valid {
		t.Fatal("Verify accepted a bit-flipped signature")
	}
}

func TestVerifyPrefixed(t *testing.T) {
	payload := []byte(`{"object":"page"}`)
	sig := "sha256=" + Sign(payload, "secret")

	if res := Verify(payload, sig, "secret", FormatSHA256Prefixed); !res.Valid {
		t.Fatalf("Verify rejected a valid prefixed signature: %v", res.Err)
	}
}

func TestVerifyPrefixedMissingPrefix(t *testing.T) {
	payload := []byte(`{"object":"page"}`)
	sig := Sign(payload, "secret")

	res := Verify(payload, sig, "secret", FormatSHA256Prefixed)
	if res.Valid {
		t.Fatal("Verify accepted a bare digest in prefixed format")
	}
	if !errors.Is(res.Err, ErrMissingPrefix) {
		t.Errorf("Err = %v, want ErrMissingPrefix", res.Err)
	}
}

func TestVerifyUnsupportedFormat(t *testing.T) {
	res := Verify([]byte("x"), "sig", "secret", SignatureFormat("base64"))
	if res.Valid {
		t.Fatal("Verify accepted an unknown format")
	}
	if !errors.Is(res.Err, ErrUnsupportedFormat) {
		t.Errorf("Err = %v, want ErrUnsupportedFormat", res.Err)
	}
}

func TestAppSecretProof(t *testing.T) {
	proof := AppSecretProof("access-token", "app-secret")
	if proof != Sign([]byte("access-token"), "app-secret") {
		t.Error("AppSecretProof does not match HMAC of token under app secret")
	}
}
