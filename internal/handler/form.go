package handler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Browser forms send numbers as numbers, numeric strings or "" for a blank
// input. formDecimal and formInt accept all three; blank means zero.

type formDecimal struct {
	decimal.Decimal
	set bool
}

func (d *formDecimal) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil {
		return err
	}
	if s == "" {
		d.Decimal, d.set = decimal.Zero, false
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	d.Decimal, d.set = v, true
	return nil
}

// ptr returns nil when the field was blank or absent.
func (d *formDecimal) ptr() *decimal.Decimal {
	if d == nil || !d.set {
		return nil
	}
	v := d.Decimal
	return &v
}

type formInt int

func (n *formInt) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil {
		return err
	}
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		v = int(f)
	}
	*n = formInt(v)
	return nil
}

func unquoteNumber(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return string(b), nil
}
