package peer

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestShortLivedCredentialFormat(t *testing.T) {
	user, pass := ShortLivedCredential("secret", "alice", time.Hour)

	parts := strings.SplitN(user, ":", 2)
	if len(parts) != 2 {
		t.Fatalf("username %q not in expires:user form", user)
	}
	if parts[1] != "alice" {
		t.Fatalf("username suffix = %q, want alice", parts[1])
	}
	expires, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		t.Fatalf("expiry segment not an integer: %v", err)
	}
	if expires <= time.Now().Unix() {
		t.Fatal("expiry should be in the future")
	}

	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(user))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if pass != want {
		t.Fatalf("password = %q, want HMAC-SHA1 %q", pass, want)
	}
}

func TestShortLivedCredentialDifferentSecretsDiffer(t *testing.T) {
	_, p1 := ShortLivedCredential("secret-a", "bob", time.Minute)
	_, p2 := ShortLivedCredential("secret-b", "bob", time.Minute)
	if p1 == p2 {
		t.Fatal("different secrets should not produce the same credential")
	}
}
