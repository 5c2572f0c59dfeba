package peer

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// ShortLivedCredential generates a Coturn-style time-limited TURN
// username/password pair: username is "<expiry-unix>:<user>", password
// is the base64 HMAC-SHA1 of the username keyed by secret.
func ShortLivedCredential(secret, user string, ttl time.Duration) (username, password string) {
	expires := time.Now().Add(ttl).Unix()
	username = fmt.Sprintf("%d:%s", expires, user)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	password = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, password
}
