package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/wallet"
)

func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(d.Round(2).InexactFloat64()) })
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

// optStr omits the field when v is empty.
func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func timestamp(e *jx.Encoder, name string, t *time.Time) {
	if t == nil || t.IsZero() {
		return
	}
	str(e, name, t.UTC().Format(time.RFC3339))
}

func encodeCart(c *cart.Cart) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "userId", c.UserID)
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range c.Items {
						e.Obj(func(e *jx.Encoder) {
							str(e, "id", it.ID)
							str(e, "productId", it.ProductID)
							str(e, "name", it.Name)
							str(e, "size", it.Size)
							e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							money(e, "price", it.Price)
							money(e, "discountedPrice", it.DiscountedPrice)
							money(e, "total", it.Total())
						})
					}
				})
			})
			money(e, "totalAmount", c.TotalAmount)
		})
	}
}

func encodeCoupon(res *coupon.Result) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "code", res.Code)
			money(e, "discountAmount", res.DiscountAmount)
			money(e, "finalAmount", res.FinalAmount)
		})
	}
}

func writeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "userId", o.UserID)
		str(e, "shippingAddressId", o.ShippingAddressID)
		str(e, "status", string(o.Status))
		str(e, "paymentMethod", string(o.PaymentMethod))
		str(e, "paymentStatus", string(o.PaymentStatus))
		money(e, "originalAmount", o.OriginalAmount)
		money(e, "initialTotalAmount", o.InitialTotalAmount)
		money(e, "currentAmount", o.CurrentAmount)
		money(e, "totalRefundAmount", o.TotalRefundAmount)
		if o.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "code", o.Coupon.Code)
					money(e, "discountAmount", o.Coupon.DiscountAmount)
				})
			})
		}
		optStr(e, "gatewayOrderId", o.GatewayOrderID)
		optStr(e, "gatewayPaymentId", o.GatewayPaymentID)
		optStr(e, "cancelReason", o.CancelReason)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					writeOrderItem(e, &o.Items[i])
				}
			})
		})
		e.Field("refunds", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, rf := range o.Refunds {
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", rf.ID)
						str(e, "itemId", rf.ItemID)
						money(e, "amount", rf.Amount)
						str(e, "destination", string(rf.Destination))
						str(e, "status", string(rf.Status))
						optStr(e, "gatewayRefundId", rf.GatewayRefundID)
						timestamp(e, "createdAt", &rf.CreatedAt)
						timestamp(e, "processedAt", rf.ProcessedAt)
					})
				}
			})
		})
		timestamp(e, "createdAt", &o.CreatedAt)
		timestamp(e, "updatedAt", &o.UpdatedAt)
	})
}

func writeOrderItem(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", it.ID)
		str(e, "productId", it.ProductID)
		str(e, "name", it.Name)
		str(e, "size", it.Size)
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		money(e, "price", it.Price)
		money(e, "discountedPrice", it.DiscountedPrice)
		money(e, "total", it.Total)
		money(e, "currentPrice", it.CurrentPrice)
		str(e, "status", string(it.Status))
		optStr(e, "cancelReason", it.CancelReason)
		timestamp(e, "cancelledAt", it.CancelledAt)
		optStr(e, "returnReason", it.ReturnReason)
		timestamp(e, "returnRequestedAt", it.ReturnRequestedAt)
		if it.RefundStatus != "" {
			str(e, "refundStatus", string(it.RefundStatus))
			money(e, "refundAmount", it.RefundAmount)
			timestamp(e, "refundedAt", it.RefundedAt)
		}
	})
}

func encodeOrder(o *order.Order) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { writeOrder(e, o) }
}

func encodePlacedOrder(o *order.Order, intent *payment.Intent) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { writeOrder(e, o) })
			if intent != nil {
				e.Field("payment", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						str(e, "gatewayOrderId", intent.ID)
						e.Field("amount", func(e *jx.Encoder) { e.Int64(intent.Amount) })
						str(e, "currency", intent.Currency)
						optStr(e, "keyId", intent.KeyID)
					})
				})
			}
		})
	}
}

func encodeOrderPage(p *order.Page) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range p.Orders {
						writeOrder(e, &p.Orders[i])
					}
				})
			})
			e.Field("total", func(e *jx.Encoder) { e.Int(p.Total) })
			e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
			e.Field("limit", func(e *jx.Encoder) { e.Int(p.Limit) })
		})
	}
}

func writeTransaction(e *jx.Encoder, tx *wallet.Transaction) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", tx.ID)
		money(e, "amount", tx.Amount)
		str(e, "type", string(tx.Type))
		optStr(e, "orderId", tx.OrderID)
		str(e, "description", tx.Description)
		str(e, "status", string(tx.Status))
		timestamp(e, "createdAt", &tx.CreatedAt)
	})
}

func encodeTransaction(tx *wallet.Transaction) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { writeTransaction(e, tx) }
}

func encodeLedger(l *wallet.Ledger) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			money(e, "balance", l.Wallet.Balance)
			money(e, "totalMoneyIn", l.TotalMoneyIn)
			money(e, "totalMoneyOut", l.TotalMoneyOut)
			e.Field("transactions", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range l.Transactions {
						writeTransaction(e, &l.Transactions[i])
					}
				})
			})
			e.Field("total", func(e *jx.Encoder) { e.Int(l.Total) })
			e.Field("page", func(e *jx.Encoder) { e.Int(l.Page) })
			e.Field("limit", func(e *jx.Encoder) { e.Int(l.Limit) })
		})
	}
}
