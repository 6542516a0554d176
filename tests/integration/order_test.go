//go:build integration

package integration

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand/v2"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func ptr[T any](v T) *T { return &v }

func proofImage(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := range 48 {
		for x := range 48 {
			img.Set(x, y, color.RGBA{R: uint8(rand.IntN(256)), G: uint8(rand.IntN(256)), B: uint8(rand.IntN(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func createOrder(t *testing.T, apiKey string, req createOrderRequest) orderResponse {
	t.Helper()

	resp := doPostJSON(t, "/api/orders", apiKey, req, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	return decodeJSON[orderResponse](t, resp)
}

func submitProof(t *testing.T, apiKey, orderID string, data []byte) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodPost, "/api/orders/"+orderID+"/proof", apiKey, bytes.NewReader(data),
		map[string]string{"Content-Type": "image/png"})
}

func TestCreateOrder_NoAuth(t *testing.T) {
	resp := doPostJSON(t, "/api/orders", "", createOrderRequest{GameID: 1, PlayerID: "p", Amount: 50000, PaymentMethodID: 2}, nil)
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateOrder_InvalidKey(t *testing.T) {
	resp := doPostJSON(t, "/api/orders", "wrong-key", createOrderRequest{GameID: 1, PlayerID: "p", Amount: 50000, PaymentMethodID: 2}, nil)
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateOrder_AmountWithVoucher(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{
		GameID:          1,
		PlayerID:        "123456789",
		ServerID:        "2001",
		Amount:          100000,
		PaymentMethodID: 2, // EWALLET: 1.5% + 2000
		VoucherCode:     "topup10",
	})

	if !uuidPattern.MatchString(order.OrderID) {
		t.Errorf("orderId %q is not a UUID", order.OrderID)
	}
	if order.Amount != 93350 {
		t.Errorf("amount: got %v, want 93350", order.Amount)
	}
	if order.DiscountAmount != 10000 {
		t.Errorf("discount: got %v, want 10000", order.DiscountAmount)
	}
	if order.FeeAmount != 3350 {
		t.Errorf("fee: got %v, want 3350", order.FeeAmount)
	}
	if order.VoucherCode != "TOPUP10" {
		t.Errorf("voucher: got %q, want TOPUP10", order.VoucherCode)
	}
	if order.Status != "pending" {
		t.Errorf("status: got %q, want pending", order.Status)
	}
	if order.UserID != 1001 {
		t.Errorf("userId: got %d, want 1001", order.UserID)
	}
}

func TestCreateOrder_Product(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{
		GameID:          1,
		PlayerID:        "123456789",
		ProductID:       ptr[int64](1), // 86 Diamonds, 20000
		PaymentMethodID: 3,             // QRIS: 0.7%
	})

	if order.BaseAmount != 20000 {
		t.Errorf("base: got %v, want 20000", order.BaseAmount)
	}
	if order.Amount != 20140 {
		t.Errorf("amount: got %v, want 20140", order.Amount)
	}
}

func TestCreateOrder_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		req         createOrderRequest
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "voucher below minimum",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", Amount: 40000, PaymentMethodID: 2, VoucherCode: "HEMAT5K"},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "minimum purchase for this voucher is 50000",
		},
		{
			name:        "unknown voucher",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", Amount: 40000, PaymentMethodID: 2, VoucherCode: "NOPE"},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "voucher not found",
		},
		{
			name:        "inactive payment method",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", Amount: 60000, PaymentMethodID: 4},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "payment method is not active",
		},
		{
			name:        "above method maximum",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", Amount: "2000001", PaymentMethodID: 2},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "amount 2000001 outside allowed range 10000 to 2000000",
		},
		{
			name:        "product of another game",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", ProductID: ptr[int64](4), PaymentMethodID: 3},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "product does not belong to the game",
		},
		{
			name:        "unknown payment method",
			req:         createOrderRequest{GameID: 1, PlayerID: "p", Amount: 60000, PaymentMethodID: 99},
			wantStatus:  http.StatusNotFound,
			wantMessage: "payment method not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPostJSON(t, "/api/orders", customerKey, tt.req, nil)
			defer resp.Body.Close()

			expectStatus(t, resp, tt.wantStatus)
			body := decodeJSON[errorResponse](t, resp)
			if body.Message != tt.wantMessage {
				t.Errorf("message: got %q, want %q", body.Message, tt.wantMessage)
			}
			if body.Code != tt.wantStatus {
				t.Errorf("code: got %d, want %d", body.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateOrder_Idempotent(t *testing.T) {
	req := createOrderRequest{GameID: 2, PlayerID: "800100", Amount: 50000, PaymentMethodID: 1}
	headers := map[string]string{"Idempotency-Key": "integration-retry-" + time.Now().Format(time.RFC3339Nano)}

	var ids []string
	for range 3 {
		resp := doPostJSON(t, "/api/orders", customerKey, req, headers)
		expectStatus(t, resp, http.StatusCreated)
		ids = append(ids, decodeJSON[orderResponse](t, resp).OrderID)
		resp.Body.Close()
	}

	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("retries created distinct orders: %v", ids)
	}

	req.Amount = 60000
	resp := doPostJSON(t, "/api/orders", customerKey, req, headers)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestOrder_Ownership(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{GameID: 1, PlayerID: "p", Amount: 50000, PaymentMethodID: 1})

	resp := doGet(t, "/api/orders/"+order.OrderID, otherCustomerKey)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusForbidden)

	resp = doGet(t, "/api/orders/"+order.OrderID, staffKey)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	resp = submitProof(t, otherCustomerKey, order.OrderID, proofImage(t))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusForbidden)

	resp = doGet(t, "/api/orders/00000000-0000-0000-0000-000000000000", customerKey)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}

func TestOrder_ProofAndVerification(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{GameID: 1, PlayerID: "p", Amount: 75000, PaymentMethodID: 1})
	proof := proofImage(t)

	resp := submitProof(t, customerKey, order.OrderID, proof)
	expectStatus(t, resp, http.StatusOK)
	processing := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if processing.Status != "processing" || !processing.HasProof {
		t.Fatalf("after proof: status %q hasProof %v", processing.Status, processing.HasProof)
	}

	resp = submitProof(t, customerKey, order.OrderID, proof)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)

	resp = doGet(t, "/api/orders/"+order.OrderID+"/proof", staffKey)
	expectStatus(t, resp, http.StatusOK)
	stored, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(stored, proof) {
		t.Fatalf("stored proof differs: got %d bytes, want %d", len(stored), len(proof))
	}

	verify := map[string]string{"status": "completed", "notes": "transfer matched"}
	resp = doPostJSON(t, "/api/orders/"+order.OrderID+"/verify", customerKey, verify, nil)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusForbidden)

	resp = doPostJSON(t, "/api/orders/"+order.OrderID+"/verify", staffKey, verify, nil)
	expectStatus(t, resp, http.StatusOK)
	completed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if completed.Status != "completed" {
		t.Errorf("status: got %q, want completed", completed.Status)
	}
	if completed.VerifiedBy == nil || *completed.VerifiedBy != 9001 {
		t.Errorf("verifiedBy: got %v, want 9001", completed.VerifiedBy)
	}
	if completed.CompletedAt == nil {
		t.Error("completedAt not set")
	}

	resp = doPostJSON(t, "/api/orders/"+order.OrderID+"/verify", staffKey, map[string]string{"status": "failed"}, nil)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)
}

func TestOrder_InvalidProof(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{GameID: 1, PlayerID: "p", Amount: 30000, PaymentMethodID: 1})

	resp := doRequest(t, http.MethodPost, "/api/orders/"+order.OrderID+"/proof", customerKey,
		bytes.NewReader(bytes.Repeat([]byte("x"), 4096)), map[string]string{"Content-Type": "image/png"})
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if body := decodeJSON[errorResponse](t, resp); body.Message != "invalid payment proof: image cannot be decoded" {
		t.Errorf("message: got %q", body.Message)
	}
}

func TestOrder_Expires(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{GameID: 1, PlayerID: "p", Amount: 30000, PaymentMethodID: 1})

	// The compose payment window is 5s.
	time.Sleep(7 * time.Second)

	resp := doGet(t, "/api/orders/"+order.OrderID, customerKey)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if got.Status != "failed" {
		t.Fatalf("status: got %q, want failed", got.Status)
	}

	resp = submitProof(t, customerKey, order.OrderID, proofImage(t))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)
}

func TestOrder_ConcurrentVerification(t *testing.T) {
	order := createOrder(t, customerKey, createOrderRequest{GameID: 1, PlayerID: "p", Amount: 30000, PaymentMethodID: 1})
	resp := submitProof(t, customerKey, order.OrderID, proofImage(t))
	resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target := "completed"
			if i%2 == 1 {
				target = "failed"
			}
			r, err := send(t.Context(), http.MethodPost, "/api/orders/"+order.OrderID+"/verify", staffKey,
				bytes.NewReader([]byte(`{"status":"`+target+`"}`)), map[string]string{"Content-Type": "application/json"})
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			r.Body.Close()
			mu.Lock()
			codes[r.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if codes[http.StatusOK] != 1 || codes[http.StatusConflict] != workers-1 {
		t.Fatalf("expected exactly one winner, got %v", codes)
	}
}

func TestListOrders(t *testing.T) {
	createOrder(t, otherCustomerKey, createOrderRequest{GameID: 3, PlayerID: "list", Amount: 30000, PaymentMethodID: 1})

	resp := doGet(t, "/api/orders?limit=50", otherCustomerKey)
	expectStatus(t, resp, http.StatusOK)
	list := decodeJSON[orderList](t, resp)
	resp.Body.Close()

	if len(list.Orders) == 0 {
		t.Fatal("expected at least one order")
	}
	for _, o := range list.Orders {
		if o.UserID != 1002 {
			t.Fatalf("listed order %s of user %d", o.OrderID, o.UserID)
		}
	}
}
