package authn

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv("GATEWISE_AUTH_SECRET", value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", "org_1", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("subject=%q", claims.Subject)
	}
	if claims.OrganizationID != "org_1" {
		t.Fatalf("org=%q", claims.OrganizationID)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles were not deduplicated: %v", claims.Roles)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")

	if _, err := GenerateToken("", "org_1", nil, time.Minute); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := GenerateToken("user-1", "org_1", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("user-1", "", nil, time.Minute); err == nil {
		t.Fatal("expected error when secret is unset")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	withSecret(t, "test-secret")

	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, err := ParseAndValidate(token); err == nil {
			t.Errorf("token %q accepted", token)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	withSecret(t, "secret-one")
	token, err := GenerateToken("user-1", "", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "secret-two")
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	withSecret(t, "test-secret")

	now := time.Now().UTC()
	claims := Claims{
		Roles: []string{"viewer"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gatewise",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndValidate(signed); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	withSecret(t, "test-secret")

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndValidate(signed); err == nil {
		t.Fatal("token with foreign issuer accepted")
	}
}

func TestParseRejectsUnexpectedAlgorithm(t *testing.T) {
	withSecret(t, "test-secret")

	// alg=none with a well-formed payload must never validate.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"gatewise","sub":"user-1"}`))
	if _, err := ParseAndValidate(header + "." + payload + "."); err == nil {
		t.Fatal("alg=none token accepted")
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	id := Identity{UserID: "user-1", OrganizationID: "org_1", Roles: []string{"admin"}}
	ctx := ContextWithIdentity(t.Context(), id)

	got, ok := IdentityFromContext(ctx)
	if !ok || got.UserID != "user-1" {
		t.Fatalf("identity lost: %+v ok=%v", got, ok)
	}
	if !got.HasRole("admin") || got.HasRole("owner") {
		t.Fatalf("role check wrong: %+v", got)
	}
	if got.PlatformAdmin() {
		t.Fatal("non platform admin reported as platform admin")
	}

	uid, ok := UserIDFromContext(ctx)
	if !ok || uid != "user-1" {
		t.Fatalf("user id lost: %q ok=%v", uid, ok)
	}

	admin := Identity{UserID: "ops", Roles: []string{RolePlatformAdmin}}
	if !admin.PlatformAdmin() {
		t.Fatal("platform admin not recognized")
	}
}
