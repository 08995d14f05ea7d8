package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-32b"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("control-room", RoleOperator, testSecret, "pjlinkd", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret, "pjlinkd")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "control-room" || claims.Role != RoleOperator || claims.Issuer != "pjlinkd" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("svc", RoleViewer, testSecret, "", 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret, "")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(DefaultTokenTTL))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry off by %v", diff)
	}
}

func TestGenerateAccessToken_UnknownRole(t *testing.T) {
	if _, err := GenerateAccessToken("svc", Role("root"), testSecret, "", 0); err == nil {
		t.Error("GenerateAccessToken() accepted an unknown role")
	}
}

func TestParseToken_Rejections(t *testing.T) {
	valid, err := GenerateAccessToken("svc", RoleAdmin, testSecret, "pjlinkd", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleViewer,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "svc"},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign no role: %v", err)
	}

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "svc"},
		Role:             RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
	}{
		{name: "empty", token: "", secret: testSecret},
		{name: "malformed", token: "abc.def", secret: testSecret},
		{name: "wrong secret", token: valid, secret: "another-secret-key-of-enough-length"},
		{name: "wrong issuer", token: valid, secret: testSecret, issuer: "someone-else"},
		{name: "expired", token: expired, secret: testSecret},
		{name: "missing role", token: noRole, secret: testSecret},
		{name: "alg none", token: noneAlg, secret: testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret, tt.issuer)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
