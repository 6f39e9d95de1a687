package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signForTest reproduces the standard-webhooks (svix-compatible) signing
// scheme so tests can construct a valid signature without depending on a
// library-internal signer: secret is "whsec_"+base64(key); the signed
// content is "{id}.{timestamp}.{payload}", HMAC-SHA256, base64-encoded,
// prefixed "v1,".
func signForTest(t *testing.T, secret, id, timestamp string, payload []byte) string {
	t.Helper()
	const prefix = "whsec_"
	require.True(t, len(secret) > len(prefix))
	key, err := base64.StdEncoding.DecodeString(secret[len(prefix):])
	require.NoError(t, err)

	toSign := fmt.Sprintf("%s.%s.%s", id, timestamp, payload)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(toSign))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return "v1," + sig
}

func testSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestVerifySignatureValid(t *testing.T) {
	secret := testSecret()
	payload := []byte(`{"type":"email.delivered"}`)
	id := "msg_1"
	ts := fmt.Sprintf("%d", time.Now().Unix())
	sig := signForTest(t, secret, id, ts, payload)

	err := VerifySignature(payload, id, ts, sig, secret)
	assert.NoError(t, err)
}

func TestVerifySignatureInvalid(t *testing.T) {
	secret := testSecret()
	payload := []byte(`{"type":"email.delivered"}`)
	id := "msg_1"
	ts := fmt.Sprintf("%d", time.Now().Unix())

	err := VerifySignature(payload, id, ts, "v1,bogus", secret)
	assert.Error(t, err)
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	secret := testSecret()
	payload := []byte(`{"type":"email.delivered"}`)
	id := "msg_1"
	ts := fmt.Sprintf("%d", time.Now().Unix())
	sig := signForTest(t, secret, id, ts, payload)

	tampered := []byte(`{"type":"email.bounced"}`)
	err := VerifySignature(tampered, id, ts, sig, secret)
	assert.Error(t, err)
}
