// Package payment abstracts the payment gateway behind a small interface so
// handlers and tests never touch the SDK directly.
package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// OrderRequest describes the order to open with the gateway. Amount is in
// paise; Receipt carries the registration ID so gateway records can be
// traced back to ours.
type OrderRequest struct {
	AmountPaise int
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Order is the gateway's created order.
type Order struct {
	ID          string
	AmountPaise int
	Currency    string
}

// Gateway creates payment orders with the upstream provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// Razorpay implements Gateway with the official SDK.
type Razorpay struct {
	client *razorpay.Client
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret)}
}

func (g *Razorpay) CreateOrder(_ context.Context, req OrderRequest) (Order, error) {
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.AmountPaise,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return Order{}, fmt.Errorf("create razorpay order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, fmt.Errorf("razorpay order response missing id")
	}
	return Order{ID: id, AmountPaise: req.AmountPaise, Currency: req.Currency}, nil
}
