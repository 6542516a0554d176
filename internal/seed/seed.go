// Package seed loads rate tables, the product catalog and API keys from a
// JSON seed file into a store.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/internal/domain/paymentmethod"
	"github.com/xenking/topup-engine/internal/domain/product"
	"github.com/xenking/topup-engine/internal/domain/voucher"
)

var gzipMagic = []byte{0x1f, 0x8b}

// File is the decoded seed file.
type File struct {
	PaymentMethods []PaymentMethod `json:"paymentMethods"`
	Products       []Product       `json:"products"`
	Vouchers       []Voucher       `json:"vouchers"`
	APIKeys        []APIKey        `json:"apiKeys"`
}

type PaymentMethod struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	FeePercentage decimal.Decimal `json:"feePercentage"`
	FeeFixed      decimal.Decimal `json:"feeFixed"`
	MinAmount     decimal.Decimal `json:"minAmount"`
	MaxAmount     decimal.Decimal `json:"maxAmount"`
	Inactive      bool            `json:"inactive"`
}

type Product struct {
	ID       int64           `json:"id"`
	GameID   int64           `json:"gameId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Inactive bool            `json:"inactive"`
}

type Voucher struct {
	Code          string           `json:"code"`
	DiscountType  string           `json:"discountType"`
	DiscountValue decimal.Decimal  `json:"discountValue"`
	MinPurchase   decimal.Decimal  `json:"minPurchase"`
	MaxDiscount   *decimal.Decimal `json:"maxDiscount"`
	UsageLimit    *int             `json:"usageLimit"`
	StartDate     *time.Time       `json:"startDate"`
	EndDate       *time.Time       `json:"endDate"`
	Inactive      bool             `json:"inactive"`
}

// APIKey carries the plaintext key; only its hash is stored.
type APIKey struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

// Sink receives seeded rows.
type Sink interface {
	PutPaymentMethod(ctx context.Context, m paymentmethod.Method) error
	PutProduct(ctx context.Context, p product.Product) error
	PutVoucher(ctx context.Context, v voucher.Voucher) error
	PutAPIKey(ctx context.Context, info auth.APIKeyInfo) error
}

// Load reads and decodes the seed file at path. Gzip-compressed files are
// detected by their header.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode reads a seed file from r, decompressing it when needed.
func Decode(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "peek seed header")
	}

	var src io.Reader = br
	if bytes.Equal(head, gzipMagic) {
		zr, err := pgzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = zr.Close() }()
		src = zr
	}

	var file File
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decode seed file")
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) validate() error {
	for _, m := range f.PaymentMethods {
		if m.ID <= 0 || m.Code == "" {
			return errors.Errorf("payment method %q: id and code are required", m.Code)
		}
	}
	for _, p := range f.Products {
		if p.ID <= 0 || p.GameID <= 0 {
			return errors.Errorf("product %q: id and gameId are required", p.Name)
		}
	}
	for _, v := range f.Vouchers {
		switch voucher.DiscountType(v.DiscountType) {
		case voucher.DiscountPercentage, voucher.DiscountFixed:
		default:
			return errors.Errorf("voucher %q: unknown discount type %q", v.Code, v.DiscountType)
		}
		if voucher.NormalizeCode(v.Code) == "" {
			return errors.New("voucher code is required")
		}
	}
	for _, k := range f.APIKeys {
		if k.ID == "" || k.Key == "" || k.UserID <= 0 {
			return errors.Errorf("api key %q: id, key and userId are required", k.ID)
		}
	}
	return nil
}

// Stats counts applied rows.
type Stats struct {
	PaymentMethods int
	Products       int
	Vouchers       int
	APIKeys        int
}

// Apply writes every row of f into sink. API keys are hashed with pepper.
func Apply(ctx context.Context, f *File, pepper []byte, sink Sink) (Stats, error) {
	var st Stats
	for _, m := range f.PaymentMethods {
		if err := sink.PutPaymentMethod(ctx, paymentmethod.Method{
			ID:            m.ID,
			Code:          m.Code,
			Name:          m.Name,
			FeePercentage: m.FeePercentage,
			FeeFixed:      m.FeeFixed,
			MinAmount:     m.MinAmount,
			MaxAmount:     m.MaxAmount,
			IsActive:      !m.Inactive,
		}); err != nil {
			return st, errors.Wrapf(err, "payment method %s", m.Code)
		}
		st.PaymentMethods++
	}

	for _, p := range f.Products {
		if err := sink.PutProduct(ctx, product.Product{
			ID:       p.ID,
			GameID:   p.GameID,
			Name:     p.Name,
			Price:    p.Price,
			IsActive: !p.Inactive,
		}); err != nil {
			return st, errors.Wrapf(err, "product %d", p.ID)
		}
		st.Products++
	}

	for _, v := range f.Vouchers {
		if err := sink.PutVoucher(ctx, voucher.Voucher{
			Code:          voucher.NormalizeCode(v.Code),
			DiscountType:  voucher.DiscountType(v.DiscountType),
			DiscountValue: v.DiscountValue,
			MinPurchase:   v.MinPurchase,
			MaxDiscount:   v.MaxDiscount,
			UsageLimit:    v.UsageLimit,
			StartDate:     v.StartDate,
			EndDate:       v.EndDate,
			IsActive:      !v.Inactive,
		}); err != nil {
			return st, errors.Wrapf(err, "voucher %s", v.Code)
		}
		st.Vouchers++
	}

	for _, k := range f.APIKeys {
		if err := sink.PutAPIKey(ctx, auth.APIKeyInfo{
			ID:      k.ID,
			KeyHash: auth.HashKey(k.Key, pepper),
			Name:    k.Name,
			UserID:  k.UserID,
			Role:    auth.ParseRole(k.Role),
		}); err != nil {
			return st, errors.Wrapf(err, "api key %s", k.ID)
		}
		st.APIKeys++
	}
	return st, nil
}
