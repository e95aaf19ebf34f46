package akira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderbook_go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var strkUsdc = domain.Pair{Base: "STRK", Quote: "USDC"}

func TestClient_GetSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book/snapshot" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("base") != "STRK" || q.Get("quote") != "USDC" || q.Get("to_ecosystem_book") != "false" || q.Get("levels") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":{"levels":{"bids":[[100,5,1],["90","3","1"]],"asks":[[110,2,1],[120,4,1]],"msg_id":7}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snap, err := client.GetSnapshot(context.Background(), strkUsdc, false, 10)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}

	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("Expected 2/2 levels, got %d/%d", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[1].Price.Int64() != 90 || snap.Bids[1].Volume.Int64() != 3 || snap.Bids[1].Orders != 1 {
		t.Errorf("quoted tuple decoded wrong: %+v", snap.Bids[1])
	}
	if snap.MsgID != 7 {
		t.Errorf("MsgID = %d, want 7", snap.MsgID)
	}
}

func TestClient_GetSnapshotErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantVenue bool
		wantNet   bool
		retriable bool
	}{
		{"venue error field", http.StatusOK, `{"error":"pair not found"}`, true, false, false},
		{"venue error object", http.StatusBadRequest, `{"error":{"code":12,"msg":"bad levels"}}`, true, false, false},
		{"server error", http.StatusInternalServerError, `oops`, false, true, true},
		{"client error", http.StatusNotFound, `not here`, false, true, false},
		{"empty result", http.StatusOK, `{}`, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).GetSnapshot(context.Background(), strkUsdc, false, 10)
			if err == nil {
				t.Fatal("expected error")
			}

			var ve *domain.VenueError
			if got := errors.As(err, &ve); got != tt.wantVenue {
				t.Errorf("VenueError = %v, want %v (%v)", got, tt.wantVenue, err)
			}
			var ne *domain.NetworkError
			if got := errors.As(err, &ne); got != tt.wantNet {
				t.Errorf("NetworkError = %v, want %v (%v)", got, tt.wantNet, err)
			}
			if domain.IsRetriable(err) != tt.retriable {
				t.Errorf("IsRetriable = %v, want %v", domain.IsRetriable(err), tt.retriable)
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).GetSnapshot(context.Background(), strkUsdc, false, 10)
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if ne.Op != "snapshot" {
		t.Errorf("Op = %s, want snapshot", ne.Op)
	}
}

func TestClient_Auth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Subject:   "0xtrader",
	}).SignedString([]byte("venue-secret"))
	if err != nil {
		t.Fatal(err)
	}

	signer := NewHMACSigner("0xsigner", "private")
	var sawBearer string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sign/request_sign_data":
			if r.URL.Query().Get("user") != "0xtrader" {
				t.Errorf("unexpected user %s", r.URL.Query().Get("user"))
			}
			w.Write([]byte(`{"result":"42"}`))
		case "/sign/auth":
			var req authRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode auth body: %v", err)
			}
			want, _ := signer.Sign("42")
			if req.Msg != "42" || req.Signature != want || req.SignerAccount != "0xsigner" {
				t.Errorf("unexpected auth request %+v", req)
			}
			json.NewEncoder(w).Encode(map[string]string{"result": token})
		case "/book/snapshot":
			sawBearer = r.Header.Get("Authorization")
			w.Write([]byte(`{"result":{"levels":{"bids":[],"asks":[]}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRateLimit(100))
	creds, err := client.Auth(context.Background(), signer, "0xtrader")
	if err != nil {
		t.Fatalf("Auth failed: %v", err)
	}
	if creds.Token != token || client.Token() != token {
		t.Error("token not stored")
	}
	if !creds.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", creds.ExpiresAt, exp)
	}
	if creds.Expired(time.Now()) {
		t.Error("fresh token should not be expired")
	}

	if _, err := client.GetSnapshot(context.Background(), strkUsdc, true, 0); err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if sawBearer != "Bearer "+token {
		t.Errorf("Authorization = %q", sawBearer)
	}
}

func TestClient_AuthOpaqueToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sign/request_sign_data" {
			w.Write([]byte(`{"result":42}`))
			return
		}
		w.Write([]byte(`{"result":"opaque-token"}`))
	}))
	defer server.Close()

	creds, err := NewClient(server.URL).Auth(context.Background(), NewHMACSigner("0xs", "k"), "0xt")
	if err != nil {
		t.Fatalf("Auth failed: %v", err)
	}
	if creds.Token != "opaque-token" || !creds.ExpiresAt.IsZero() {
		t.Errorf("unexpected creds %+v", creds)
	}
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"levels":{"bids":[],"asks":[]}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRateLimit(1))
	ctx := context.Background()
	if _, err := client.GetSnapshot(ctx, strkUsdc, false, 1); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := client.GetSnapshot(ctx, strkUsdc, false, 1); err == nil {
		t.Error("expected limiter to fail within a short deadline")
	}
}
