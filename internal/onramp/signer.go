// Package onramp prepares signed widget sessions for the crypto on-ramp.
// The signature binds the payout wallet, the client IP and the cart id so
// the hosted widget cannot be replayed for a different purchase.
package onramp

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/payhook/internal/checkout/domain"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnconfigured = errors.New("onramp_not_configured")

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Checkout checkoutdomain.Service
}

type Signer struct {
	log      *zap.Logger
	cfg      config.OnrampConfig
	checkout checkoutdomain.Service
}

func NewSigner(p Params) *Signer {
	return &Signer{
		log:      p.Log.Named("onramp.signer"),
		cfg:      p.Cfg.Onramp,
		checkout: p.Checkout,
	}
}

// Session is the payload the storefront hands to the on-ramp widget.
type Session struct {
	WidgetID              string `json:"widget_id"`
	Address               string `json:"address"`
	MerchantTransactionID string `json:"merchant_transaction_id"`
	FiatAmount            string `json:"fiat_amount"`
	FiatCurrency          string `json:"fiat_currency"`
	Currency              string `json:"currency"`
	Signature             string `json:"signature"`
	IP                    string `json:"ip"`
}

// Sign builds a widget session for the cart. The fiat amount is rendered in
// major units with exactly two decimals, and the signature is
// sha512(wallet + secret + ip + cartID) in the provider's v2 form.
func (s *Signer) Sign(ctx context.Context, cartID string, clientIP string) (*Session, error) {
	if s.cfg.Secret == "" || s.cfg.WalletAddress == "" || s.cfg.WidgetID == "" {
		s.log.Error("onramp signer missing configuration")
		return nil, ErrUnconfigured
	}

	id, err := snowflake.ParseString(strings.TrimSpace(cartID))
	if err != nil {
		return nil, checkoutdomain.ErrCartNotFound
	}

	cart, err := s.checkout.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := sha512.Sum512([]byte(s.cfg.WalletAddress + s.cfg.Secret + clientIP + cart.ID.String()))
	signature := "v2:" + hex.EncodeToString(sum[:])

	return &Session{
		WidgetID:              s.cfg.WidgetID,
		Address:               s.cfg.WalletAddress,
		MerchantTransactionID: cart.ID.String(),
		FiatAmount:            money.MajorString(cart.TotalAmount),
		FiatCurrency:          strings.ToUpper(cart.Currency),
		Currency:              s.cfg.PayoutAsset,
		Signature:             signature,
		IP:                    clientIP,
	}, nil
}

// ResolveClientIP picks the originating client address: the first entry of
// X-Forwarded-For when present, otherwise the transport-level remote, falling
// back to loopback so the signature input is never empty.
func ResolveClientIP(forwardedFor, remote string) string {
	forwardedFor = strings.TrimSpace(forwardedFor)
	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if remote = strings.TrimSpace(remote); remote != "" {
		return remote
	}
	return "127.0.0.1"
}
