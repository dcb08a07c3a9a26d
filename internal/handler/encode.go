package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/session"
)

// Money is rendered as a fixed two-decimal string.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeView(e *jx.Encoder, v session.View) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range v.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("sku")
		e.Str(l.SKU)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unit_price")
		money(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("stock")
		e.Int(l.Stock)
		e.FieldStart("subtotal")
		money(e, l.Subtotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	money(e, v.Total)
	e.FieldStart("items")
	e.Int(v.Items)
	e.FieldStart("committing")
	e.Bool(v.Committing)
	e.ObjEnd()
}

func encodeReceipt(e *jx.Encoder, r *sale.Receipt) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range r.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("sku")
		e.Str(l.SKU)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unit_price")
		money(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("subtotal")
		money(e, l.Subtotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	money(e, r.Total)
	e.FieldStart("message")
	e.Str(r.Message)
	e.FieldStart("created_at")
	e.Str(r.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeNotice(e *jx.Encoder, n notice.Notice) {
	e.ObjStart()
	e.FieldStart("level")
	e.Str(string(n.Level))
	e.FieldStart("code")
	e.Str(string(n.Code))
	e.FieldStart("message")
	e.Str(n.Message)
	e.FieldStart("at")
	e.Str(n.At.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}
