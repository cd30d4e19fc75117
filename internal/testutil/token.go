package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Secret is the HMAC key shared by test relays and test tokens.
var Secret = []byte("kanban-test-secret")

// Token returns an HS256 token for userID signed with Secret.
func Token(t testing.TB, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(Secret)
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}
