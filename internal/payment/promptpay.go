// Package payment renders the simulated PromptPay QR shown at checkout.
package payment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// EMVCo merchant-presented QR tags used by PromptPay.
const (
	tagPayloadFormat  = "00"
	tagPointOfInit    = "01"
	tagMerchantInfo   = "29"
	tagCountry        = "58"
	tagCurrency       = "53"
	tagAmount         = "54"
	tagCRC            = "63"
	promptPayAID      = "A000000677010111"
	subTagAID         = "00"
	subTagPhone       = "01"
	subTagNationalID  = "02"
	subTagEWallet     = "03"
	pointOfInitStatic = "11"
	pointOfInitOnce   = "12"
	currencyTHB       = "764"
)

var (
	// ErrInvalidTarget is returned for a PromptPay ID that is neither a phone
	// number, a national ID nor an e-wallet ID.
	ErrInvalidTarget = errors.New("invalid promptpay target")
	// ErrInvalidAmount is returned for a negative amount.
	ErrInvalidAmount = errors.New("amount must not be negative")
)

// PromptPayPayload builds the EMVCo payload paying amount to target. A zero
// amount produces a reusable static code; otherwise the code is single-use
// and carries the amount rounded to two places.
func PromptPayPayload(target string, amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", ErrInvalidAmount
	}
	account, err := merchantAccount(target)
	if err != nil {
		return "", err
	}

	poi := pointOfInitOnce
	if amount.IsZero() {
		poi = pointOfInitStatic
	}

	var b strings.Builder
	b.WriteString(field(tagPayloadFormat, "01"))
	b.WriteString(field(tagPointOfInit, poi))
	b.WriteString(field(tagMerchantInfo, account))
	b.WriteString(field(tagCountry, "TH"))
	b.WriteString(field(tagCurrency, currencyTHB))
	if !amount.IsZero() {
		b.WriteString(field(tagAmount, amount.StringFixed(2)))
	}
	b.WriteString(tagCRC + "04")
	b.WriteString(fmt.Sprintf("%04X", CRC16([]byte(b.String()))))
	return b.String(), nil
}

// QRCode renders payload as a size x size PNG.
func QRCode(payload string, size int) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) as required
// by the EMVCo QR specification.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range data {
		crc ^= uint16(c) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func merchantAccount(target string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, target)

	var sub string
	switch {
	case len(digits) == 15:
		sub = field(subTagEWallet, digits)
	case len(digits) == 13:
		sub = field(subTagNationalID, digits)
	case len(digits) == 10 && digits[0] == '0':
		// 0812345678 -> 0066812345678
		sub = field(subTagPhone, "0066"+digits[1:])
	default:
		return "", errors.Wrapf(ErrInvalidTarget, "%q", target)
	}
	return field(subTagAID, promptPayAID) + sub, nil
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}
