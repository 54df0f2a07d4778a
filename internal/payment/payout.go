package payment

import (
	"encoding/json"
	"fmt"
	"regexp"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/common/validation"
	"github.com/frahmantamala/disbursement/internal/fsp"
)

var (
	mobileNumberPattern  = regexp.MustCompile(`^(\+63|0)?9\d{9}$`)
	accountNumberPattern = regexp.MustCompile(`^[0-9]{6,20}$`)
)

// PayoutChannel is one of BankTransfer, DigitalWallet or CashPickup. The
// unexported method keeps the set closed.
type PayoutChannel interface {
	Channel() fsp.Channel
	Destination() map[string]string
	validate(v *validation.ValidationBuilder)
	isPayoutChannel()
}

type BankTransfer struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (BankTransfer) Channel() fsp.Channel { return fsp.ChannelBankTransfer }
func (BankTransfer) isPayoutChannel()     {}

func (b BankTransfer) Destination() map[string]string {
	return map[string]string{
		"bank_code":      b.BankCode,
		"account_number": b.AccountNumber,
		"account_name":   b.AccountName,
	}
}

func (b BankTransfer) validate(v *validation.ValidationBuilder) {
	v.Field("bank_code", b.BankCode).Required().MaxLength(20)
	v.Field("account_number", b.AccountNumber).Required().Pattern(accountNumberPattern, "6 to 20 digits")
	v.Field("account_name", b.AccountName).Required().MaxLength(200)
}

type DigitalWallet struct {
	Provider     string `json:"provider"`
	MobileNumber string `json:"mobile_number"`
}

func (DigitalWallet) Channel() fsp.Channel { return fsp.ChannelDigitalWallet }
func (DigitalWallet) isPayoutChannel()     {}

func (d DigitalWallet) Destination() map[string]string {
	return map[string]string{
		"wallet_provider": d.Provider,
		"mobile_number":   d.MobileNumber,
	}
}

func (d DigitalWallet) validate(v *validation.ValidationBuilder) {
	v.Field("provider", d.Provider).Required().MaxLength(20)
	v.Field("mobile_number", d.MobileNumber).Required().Pattern(mobileNumberPattern, "a Philippine mobile number")
}

type CashPickup struct {
	MobileNumber string `json:"mobile_number"`
	Outlet       string `json:"outlet,omitempty"`
}

func (CashPickup) Channel() fsp.Channel { return fsp.ChannelCashPickup }
func (CashPickup) isPayoutChannel()     {}

func (c CashPickup) Destination() map[string]string {
	dest := map[string]string{"mobile_number": c.MobileNumber}
	if c.Outlet != "" {
		dest["outlet"] = c.Outlet
	}
	return dest
}

func (c CashPickup) validate(v *validation.ValidationBuilder) {
	v.Field("mobile_number", c.MobileNumber).Required().Pattern(mobileNumberPattern, "a Philippine mobile number")
	v.Field("outlet", c.Outlet).MaxLength(100)
}

// PayoutRequest is the wire form of a payout channel: exactly one block set.
type PayoutRequest struct {
	BankTransfer  *BankTransfer  `json:"bank_transfer,omitempty"`
	DigitalWallet *DigitalWallet `json:"digital_wallet,omitempty"`
	CashPickup    *CashPickup    `json:"cash_pickup,omitempty"`
}

// Channel returns the single populated block, or nil when none or more than
// one is set.
func (r PayoutRequest) Channel() PayoutChannel {
	var (
		found PayoutChannel
		n     int
	)
	if r.BankTransfer != nil {
		found, n = *r.BankTransfer, n+1
	}
	if r.DigitalWallet != nil {
		found, n = *r.DigitalWallet, n+1
	}
	if r.CashPickup != nil {
		found, n = *r.CashPickup, n+1
	}
	if n != 1 {
		return nil
	}
	return found
}

// Validate records violations under v, which is usually nested at
// "payments[i].payout".
func (r PayoutRequest) Validate(v *validation.ValidationBuilder) {
	n := 0
	for _, set := range []bool{r.BankTransfer != nil, r.DigitalWallet != nil, r.CashPickup != nil} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		v.Fail("", "exactly one of bank_transfer, digital_wallet or cash_pickup is required", apperrors.ErrCodeInvalidChannel)
		return
	case n > 1:
		v.Fail("", "only one payout channel may be given", apperrors.ErrCodeInvalidChannel)
		return
	}

	ch := r.Channel()
	ch.validate(v.Nested(payoutKey(ch.Channel())))
}

func payoutKey(ch fsp.Channel) string {
	switch ch {
	case fsp.ChannelBankTransfer:
		return "bank_transfer"
	case fsp.ChannelDigitalWallet:
		return "digital_wallet"
	default:
		return "cash_pickup"
	}
}

// EncodePayout returns the column values stored for a payout channel.
func EncodePayout(ch PayoutChannel) (string, []byte, error) {
	raw, err := json.Marshal(ch)
	if err != nil {
		return "", nil, err
	}
	return string(ch.Channel()), raw, nil
}

func DecodePayout(channelType string, raw []byte) (PayoutChannel, error) {
	switch fsp.Channel(channelType) {
	case fsp.ChannelBankTransfer:
		var b BankTransfer
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case fsp.ChannelDigitalWallet:
		var d DigitalWallet
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case fsp.ChannelCashPickup:
		var c CashPickup
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown payout channel %q", channelType)
}
