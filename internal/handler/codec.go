package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/order"
)

// errMalformed marks request bodies that are not valid JSON of the expected
// shape.
var errMalformed = errors.New("malformed request body")

type createOrderBody struct {
	GameID          int64
	PlayerID        string
	ServerID        string
	ProductID       *int64
	Amount          decimal.Decimal
	PaymentMethodID int64
	VoucherCode     string
}

func decodeCreateOrder(data []byte) (createOrderBody, error) {
	var b createOrderBody
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "gameId":
			b.GameID, err = d.Int64()
		case "playerId":
			b.PlayerID, err = d.Str()
		case "serverId":
			b.ServerID, err = d.Str()
		case "productId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var id int64
			id, err = d.Int64()
			b.ProductID = &id
		case "amount":
			b.Amount, err = decodeDecimal(d)
		case "paymentMethodId":
			b.PaymentMethodID, err = d.Int64()
		case "voucherCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			b.VoucherCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return b, errors.Wrap(errMalformed, err.Error())
	}
	return b, nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.New("expected number")
	}
}

type verifyBody struct {
	Status string
	Notes  string
}

func decodeVerify(data []byte) (verifyBody, error) {
	var b verifyBody
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			b.Status, err = d.Str()
		case "notes":
			if d.Next() == jx.Null {
				return d.Null()
			}
			b.Notes, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return b, errors.Wrap(errMalformed, err.Error())
	}
	return b, nil
}

func encodeMoney(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(d.String()))
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOptTime(e *jx.Encoder, field string, t *time.Time) {
	if t != nil {
		encodeTime(e, field, *t)
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderId")
	e.Str(o.OrderID)
	e.FieldStart("userId")
	e.Int64(o.UserID)
	e.FieldStart("gameId")
	e.Int64(o.GameID)
	if o.ProductID != nil {
		e.FieldStart("productId")
		e.Int64(*o.ProductID)
	}
	e.FieldStart("paymentMethodId")
	e.Int64(o.PaymentMethodID)
	e.FieldStart("playerId")
	e.Str(o.PlayerID)
	if o.ServerID != "" {
		e.FieldStart("serverId")
		e.Str(o.ServerID)
	}

	encodeMoney(e, "amount", o.Amount)
	encodeMoney(e, "baseAmount", o.BaseAmount)
	encodeMoney(e, "discountAmount", o.DiscountAmount)
	encodeMoney(e, "feeAmount", o.FeeAmount)
	if o.VoucherCode != "" {
		e.FieldStart("voucherCode")
		e.Str(o.VoucherCode)
	}

	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("hasProof")
	e.Bool(o.HasProof())
	encodeTime(e, "paymentExpiresAt", o.PaymentExpiresAt)

	if o.VerifiedBy != nil {
		e.FieldStart("verifiedBy")
		e.Int64(*o.VerifiedBy)
	}
	encodeOptTime(e, "verifiedAt", o.VerifiedAt)
	encodeOptTime(e, "completedAt", o.CompletedAt)
	if o.Notes != "" {
		e.FieldStart("notes")
		e.Str(o.Notes)
	}
	encodeTime(e, "createdAt", o.CreatedAt)
	encodeTime(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}
