package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/order"
)

const (
	// HeaderIdempotencyKey makes order creation safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxJSONBody          = 64 << 10
	maxIdempotencyKeyLen = 128
	multipartOverhead    = 64 << 10
)

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func readJSON(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, errors.Wrap(errMalformed, err.Error())
	}
	return data, nil
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		badRequest(w, "Idempotency-Key is too long")
		return
	}

	data, err := readJSON(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	body, err := decodeCreateOrder(data)
	if err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), principal(r), order.CreateRequest{
		GameID:          body.GameID,
		PlayerID:        body.PlayerID,
		ServerID:        body.ServerID,
		ProductID:       body.ProductID,
		BaseAmount:      body.Amount,
		PaymentMethodID: body.PaymentMethodID,
		VoucherCode:     body.VoucherCode,
		IdempotencyKey:  key,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+o.OrderID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var f order.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, ok := order.ParseStatus(s)
		if !ok {
			badRequest(w, "unknown status "+strconv.Quote(s))
			return
		}
		f.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if s := q.Get("userId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			badRequest(w, "userId must be an integer")
			return
		}
		f.UserID = id
	}

	list, err := h.orders.ListOrders(r.Context(), principal(r), f)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range list {
			encodeOrder(e, &list[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// GetOrder handles GET /api/orders/{ref}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), principal(r), orderRef(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// SubmitProof handles POST /api/orders/{ref}/proof. The image is either the
// raw request body or the "proof" field of a multipart form.
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.readProof(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.SubmitProof(r.Context(), principal(r), orderRef(r), proof)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) readProof(w http.ResponseWriter, r *http.Request) (order.Proof, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxProofBytes)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return order.Proof{}, tooLarge(err)
		}
		return order.Proof{ContentType: r.Header.Get("Content-Type"), Data: data}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxProofBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxProofBytes); err != nil {
		return order.Proof{}, tooLarge(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("proof")
	if err != nil {
		return order.Proof{}, &order.InvalidArtifactError{Reason: "multipart field \"proof\" is missing"}
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxProofBytes+1))
	if err != nil {
		return order.Proof{}, errors.Wrap(err, "read proof")
	}
	if int64(len(data)) > h.maxProofBytes {
		return order.Proof{}, tooLarge(nil)
	}
	return order.Proof{ContentType: header.Header.Get("Content-Type"), Data: data}, nil
}

func tooLarge(err error) error {
	var maxErr *http.MaxBytesError
	if err == nil || errors.As(err, &maxErr) {
		return &order.InvalidArtifactError{Reason: "upload exceeds size limit"}
	}
	return errors.Wrap(errMalformed, err.Error())
}

// GetProof handles GET /api/orders/{ref}/proof.
func (h *Handler) GetProof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.orders.GetProof(r.Context(), principal(r), orderRef(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", proof.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(proof.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(proof.Data)
}

// Verify handles POST /api/orders/{ref}/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	data, err := readJSON(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	body, err := decodeVerify(data)
	if err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.Verify(r.Context(), principal(r), orderRef(r), order.VerifyRequest{
		Target: order.Status(strings.ToLower(body.Status)),
		Notes:  body.Notes,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
