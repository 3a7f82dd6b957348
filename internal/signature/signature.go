package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// saltBytes is the minimum the ledger accepts; reusing a salt across requests
// is a replay risk, so every Sign call draws a fresh one.
const saltBytes = 8

// Sign produces the ledger request signature for one dispatch. The salt and
// timestamp are generated here and must be sent along with the signature in
// the same request; signatures are never cached because the ledger rejects
// stale timestamps.
func Sign(method, path string, body interface{}, secret, accessKey string) (sig, salt string, timestamp int64, err error) {
	salt, err = newSalt()
	if err != nil {
		return "", "", 0, err
	}
	timestamp = time.Now().Unix()
	sig, err = SignWith(method, path, salt, timestamp, accessKey, secret, body)
	if err != nil {
		return "", "", 0, err
	}
	return sig, salt, timestamp, nil
}

// SignWith is the deterministic core: identical inputs always yield the same
// signature. The string-to-sign is a plain concatenation in the exact order
// the ledger's verifier reconstructs it, secret included in the signed string
// as well as used as the HMAC key.
func SignWith(method, path, salt string, timestamp int64, accessKey, secret string, body interface{}) (string, error) {
	canonical, err := CanonicalBody(body)
	if err != nil {
		return "", err
	}
	toSign := strings.ToLower(method) + path + salt +
		strconv.FormatInt(timestamp, 10) + accessKey + secret + canonical
	return digest(toSign, secret), nil
}

// CanonicalBody serializes a request body to its minimal JSON form. An empty
// body canonicalizes to the empty string, never to "{}".
func CanonicalBody(body interface{}) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SignWebhook computes the signature an upstream source attaches to a
// webhook: url+salt+timestamp+access_key+secret+body, same double-encoded
// digest as requests.
func SignWebhook(url, salt, timestamp, accessKey, secret string, body []byte) string {
	return digest(url+salt+timestamp+accessKey+secret+string(body), secret)
}

// VerifyWebhook checks an inbound notification's signature in constant time.
func VerifyWebhook(url, salt, timestamp, accessKey, secret string, body []byte, got string) bool {
	want := SignWebhook(url, salt, timestamp, accessKey, secret, body)
	return hmac.Equal([]byte(want), []byte(got))
}

// digest computes HMAC-SHA256 keyed by the secret, hex-encodes the sum and
// then base64-encodes the hex string. The double encoding matches the remote
// verifier and is not negotiable.
func digest(toSign, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	hexSum := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(hexSum))
}

func newSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
