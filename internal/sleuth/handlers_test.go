package sleuth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/cryptosleuth/internal/docstore"
)

// ---------------------------------------------------------------------------
// Test router setup
// ---------------------------------------------------------------------------

func setupHandlerTestRouter(store docstore.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := newTestService(store)
	handler := NewHandler(svc)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api"))
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/trace
// ---------------------------------------------------------------------------

func TestHandler_Trace_200(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	w := doJSON(router, "POST", "/api/trace", `{"address":"0xdeadbeef","chain":"ethereum"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Address      string   `json:"address"`
		Chain        string   `json:"chain"`
		RiskScore    int      `json:"risk_score"`
		Flags        []string `json:"flags"`
		Transactions []struct {
			TxID   string   `json:"txid"`
			From   string   `json:"from_address"`
			To     string   `json:"to_address"`
			Amount float64  `json:"amount"`
			Symbol string   `json:"symbol"`
			Flags  []string `json:"flags"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.RiskScore != 100 {
		t.Errorf("Expected risk_score 100, got %d", resp.RiskScore)
	}
	if len(resp.Flags) != 2 || resp.Flags[0] != "hack_proceeds" || resp.Flags[1] != "structuring" {
		t.Errorf("Unexpected flags: %v", resp.Flags)
	}
	if len(resp.Transactions) != 6 {
		t.Fatalf("Expected 6 transactions, got %d", len(resp.Transactions))
	}
	for i, tx := range resp.Transactions {
		if tx.Symbol != "ETH" {
			t.Errorf("tx %d: expected symbol ETH, got %s", i, tx.Symbol)
		}
		if tx.Flags == nil {
			t.Errorf("tx %d: flags should be an array, not null", i)
		}
		if tx.From != "0xdeadbeef" && tx.To != "0xdeadbeef" {
			t.Errorf("tx %d: wallet is neither sender nor receiver", i)
		}
	}
}

func TestHandler_Trace_DefaultChain(t *testing.T) {
	router := setupHandlerTestRouter(nil)

	w := doJSON(router, "POST", "/api/trace", `{"address":"plain"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"chain":"ethereum"`) {
		t.Errorf("Expected default chain in response: %s", w.Body.String())
	}
}

func TestHandler_Trace_400(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"empty address", `{"address":""}`},
		{"whitespace address", `{"address":"   ","chain":"ethereum"}`},
		{"missing address", `{"chain":"ethereum"}`},
		{"malformed json", `{"address":`},
		{"no body", ""},
		{"oversized chain", `{"address":"0xabc","chain":"` + strings.Repeat("c", 65) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/api/trace", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp map[string]interface{}
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp["error"] != "invalid_request" {
				t.Errorf("Expected invalid_request, got %v", resp["error"])
			}
		})
	}
}

func TestHandler_Trace_StoreDown(t *testing.T) {
	router := setupHandlerTestRouter(&failingStore{})

	w := doJSON(router, "POST", "/api/trace", `{"address":"0xmixer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 despite store failure, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/report
// ---------------------------------------------------------------------------

func TestHandler_Report_200(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	w := doJSON(router, "POST", "/api/report", `{"address":"tornado-cash-user","chain":"ethereum"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID        string `json:"id"`
		Address   string `json:"address"`
		Chain     string `json:"chain"`
		Summary   string `json:"summary"`
		RiskScore int    `json:"risk_score"`
		Details   struct {
			Recommendation string `json:"recommendation"`
		} `json:"details"`
		GeneratedAt string `json:"generated_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	// len 17: mixer_use only
	if resp.RiskScore != 50 {
		t.Errorf("Expected risk_score 50, got %d", resp.RiskScore)
	}
	if resp.Details.Recommendation != "Manual review needed" {
		t.Errorf("Unexpected recommendation: %s", resp.Details.Recommendation)
	}
	if !strings.Contains(resp.Summary, "Moderate Risk with score 50") {
		t.Errorf("Unexpected summary: %s", resp.Summary)
	}
	if resp.GeneratedAt == "" || resp.ID == "" {
		t.Error("Expected generated_at and id to be set")
	}
}

func TestHandler_Report_400(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	w := doJSON(router, "POST", "/api/report", `{"address":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Address is required") {
		t.Errorf("Expected address message, got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// GET /api/rules
// ---------------------------------------------------------------------------

func TestHandler_ListRules(t *testing.T) {
	router := setupHandlerTestRouter(nil)

	w := doJSON(router, "GET", "/api/rules", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Rules []struct {
			ID     string `json:"id"`
			Impact int    `json:"impact"`
		} `json:"rules"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 7 || len(resp.Rules) != 7 {
		t.Fatalf("Expected 7 rules, got %d", resp.Count)
	}
	if resp.Rules[0].ID != "darknet_link" || resp.Rules[0].Impact != 70 {
		t.Errorf("Unexpected first rule: %+v", resp.Rules[0])
	}
}

// ---------------------------------------------------------------------------
// GET /api/wallets/:address and /reports
// ---------------------------------------------------------------------------

func TestHandler_GetWallet(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	w := doJSON(router, "GET", "/api/wallets/0xnobody", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before any trace, got %d", w.Code)
	}

	doJSON(router, "POST", "/api/trace", `{"address":"0xnobody","chain":"tron"}`)

	w = doJSON(router, "GET", "/api/wallets/0xnobody", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Wallet WalletRecord `json:"wallet"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Wallet.Chain != "tron" {
		t.Errorf("Expected chain tron, got %s", resp.Wallet.Chain)
	}
}

func TestHandler_GetWallet_NoStore(t *testing.T) {
	router := setupHandlerTestRouter(nil)

	w := doJSON(router, "GET", "/api/wallets/0xabc", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
}

func TestHandler_ListReports(t *testing.T) {
	router := setupHandlerTestRouter(docstore.NewMemoryStore())

	for i := 0; i < 3; i++ {
		w := doJSON(router, "POST", "/api/report", `{"address":"0xabc"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("report %d: expected 200, got %d", i, w.Code)
		}
	}

	w := doJSON(router, "GET", "/api/wallets/0xabc/reports?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Reports []Report `json:"reports"`
		Count   int      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 reports, got %d", resp.Count)
	}

	w = doJSON(router, "GET", "/api/wallets/0xother/reports", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}
