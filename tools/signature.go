package tools

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// ComputeTwilioSignature calcula X-Twilio-Signature:
// base64(HMAC-SHA1(authToken, url + chave1 + valor1 + chave2 + valor2 ...)), chaves em ordem.
func ComputeTwilioSignature(authToken string, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyTwilioSignature compara em tempo constante.
func VerifyTwilioSignature(authToken string, fullURL string, params url.Values, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := ComputeTwilioSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(expected), []byte(provided))
}
