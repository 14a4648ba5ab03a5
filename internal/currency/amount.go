package currency

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when a raw value cannot be parsed
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrFractionalBaseUnit is returned when a main unit value has more
	// decimal places than the unit supports
	ErrFractionalBaseUnit = errors.New("amount is not a whole number of base units")
)

// Unit describes how the amounts of one asset are denominated
type Unit struct {
	Name     string `json:"name" yaml:"name"`
	BaseName string `json:"base_name" yaml:"base_name"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

// Amount is an immutable quantity of an asset held in base units
type Amount struct {
	unit  Unit
	value *big.Int
}

// Zero returns the zero amount of the given unit
func Zero(unit Unit) Amount {
	return Amount{unit: unit, value: new(big.Int)}
}

// NewFromBigInt wraps a base unit value. The value is copied.
func NewFromBigInt(unit Unit, v *big.Int) Amount {
	if v == nil {
		return Zero(unit)
	}
	return Amount{unit: unit, value: new(big.Int).Set(v)}
}

// NewFromInt64 wraps a base unit value
func NewFromInt64(unit Unit, v int64) Amount {
	return Amount{unit: unit, value: big.NewInt(v)}
}

// NewFromBase parses a base unit value, either decimal or 0x-prefixed hex
func NewFromBase(unit Unit, raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Amount{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}

	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		_, ok = v.SetString(raw[2:], 16)
	} else {
		_, ok = v.SetString(raw, 10)
	}
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return Amount{unit: unit, value: v}, nil
}

// NewFromMain parses a value expressed in main units (e.g. "1.5" ETH)
func NewFromMain(unit Unit, raw string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	shifted := d.Shift(unit.Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %s has more than %d decimals", ErrFractionalBaseUnit, raw, unit.Decimals)
	}
	return Amount{unit: unit, value: shifted.BigInt()}, nil
}

func (a Amount) int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// Unit returns the denomination of the amount
func (a Amount) Unit() Unit {
	return a.unit
}

// WithUnit returns the same quantity tagged with unit
func (a Amount) WithUnit(unit Unit) Amount {
	return Amount{unit: unit, value: a.int()}
}

func (a Amount) resultUnit(o Amount) Unit {
	if a.unit.Name == "" {
		return o.unit
	}
	return a.unit
}

// Add returns a + o
func (a Amount) Add(o Amount) Amount {
	return Amount{unit: a.resultUnit(o), value: new(big.Int).Add(a.int(), o.int())}
}

// Sub returns a - o
func (a Amount) Sub(o Amount) Amount {
	return Amount{unit: a.resultUnit(o), value: new(big.Int).Sub(a.int(), o.int())}
}

// Neg returns -a
func (a Amount) Neg() Amount {
	return Amount{unit: a.unit, value: new(big.Int).Neg(a.int())}
}

// Cmp compares a and o and returns -1, 0 or +1
func (a Amount) Cmp(o Amount) int {
	return a.int().Cmp(o.int())
}

// Gte reports whether a >= o
func (a Amount) Gte(o Amount) bool {
	return a.Cmp(o) >= 0
}

// IsZero reports whether the amount is zero
func (a Amount) IsZero() bool {
	return a.int().Sign() == 0
}

// Sign returns -1, 0 or +1 depending on the sign of the amount
func (a Amount) Sign() int {
	return a.int().Sign()
}

// BigInt returns a copy of the base unit value
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.int())
}

// ToBaseUnit returns the value in base units as a decimal string
func (a Amount) ToBaseUnit() string {
	return a.int().String()
}

// ToMainUnit returns the value in main units as a decimal string
func (a Amount) ToMainUnit() string {
	return decimal.NewFromBigInt(a.int(), -a.unit.Decimals).String()
}

// String returns the base unit representation
func (a Amount) String() string {
	return a.ToBaseUnit()
}

// MarshalJSON encodes the amount as a quoted base unit string
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToBaseUnit())
}

// UnmarshalJSON decodes a quoted (or bare) base unit value. The unit is not
// part of the encoding and must be reattached with WithUnit.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		raw = string(data)
	}
	parsed, err := NewFromBase(Unit{}, raw)
	if err != nil {
		return err
	}
	a.value = parsed.value
	return nil
}
