package integration_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAuthIntegration_Login_Refresh_Logout(t *testing.T) {
	router, _, _ := buildApp(t)

	// login

	loginBody := fmt.Sprintf(`{"email":%q,"password":%q}`, adminEmail, adminPassword)

	w, response := doRequest(router, http.MethodPost, "/api/v1/auth/login", loginBody)

	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, body=%s", w.Code, w.Body.String())
	}

	var loginTok tokenEnvelope
	mustReadJSON(t, w, &loginTok)

	if strings.TrimSpace(loginTok.Data.AccessToken) == "" {
		t.Fatal("login expected accessToken, got empty")
	}

	firstRefresh := refreshCookie(response)
	if firstRefresh == nil {
		t.Fatal("refresh_token cookie not set on login")
	}

	// REFRESH (happy path) rotates the cookie

	w2, response2 := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie(firstRefresh))

	if w2.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, body=%s", w2.Code, w2.Body.String())
	}

	rotated := refreshCookie(response2)
	if rotated == nil || rotated.Value == firstRefresh.Value {
		t.Fatal("refresh did not rotate the cookie")
	}

	// replaying the OLD cookie must fail and kill the session family

	w3, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie(firstRefresh))
	if w3.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(old cookie) got status %d, want 401, body=%s", w3.Code, w3.Body.String())
	}

	// the rotated cookie dies with the family

	w4, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie(rotated))
	if w4.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(rotated, after reuse) got status %d, want 401, body=%s", w4.Code, w4.Body.String())
	}

	// a fresh login then logout clears the cookie

	_, freshCookie := loginAsAdmin(t, router)

	w5, response5 := doRequest(router, http.MethodPost, "/api/v1/auth/logout", "", withCookie(freshCookie))

	if w5.Code != http.StatusNoContent {
		t.Fatalf("logout got status %d, body=%s", w5.Code, w5.Body.String())
	}

	cleared := false
	for _, c := range response5.Cookies() {
		if c.Name == "refresh_token" && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected logout to clear refresh_token cookie")
	}

	w6, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie(freshCookie))
	if w6.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(after logout) got status %d, want 401, body=%s", w6.Code, w6.Body.String())
	}
}

func TestAuthIntegration_Refresh_MissingCookie(t *testing.T) {
	router, _, _ := buildApp(t)

	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(missing cookie) got status %d, want 401, body=%s", w.Code, w.Body.String())
	}
}

func TestAuthIntegration_Login_InvalidCredentials(t *testing.T) {
	router, _, _ := buildApp(t)

	body := `{"email":"nope@example.com","password":"wrong-password"}`
	w, _ := doRequest(router, http.MethodPost, "/api/v1/auth/login", body)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login(invalid creds) got status %d, want 401, body=%s", w.Code, w.Body.String())
	}
}

func TestAuthIntegration_AdminRoutesRequireToken(t *testing.T) {
	router, _, _ := buildApp(t)

	w, _ := doRequest(router, http.MethodGet, "/api/v1/logs", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated admin route got status %d, want 401, body=%s", w.Code, w.Body.String())
	}

	token, _ := loginAsAdmin(t, router)

	w2, _ := doRequest(router, http.MethodGet, "/api/v1/logs", "", withBearer(token))
	if w2.Code != http.StatusOK {
		t.Fatalf("authenticated admin route got status %d, body=%s", w2.Code, w2.Body.String())
	}
}
