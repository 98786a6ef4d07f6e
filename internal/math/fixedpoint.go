package math

import (
	"math/big"
	"sync"
)

// WadPrecision is the number of decimal places in a fixed-point value.
// 1e18 == 1.0, matching fungible-token decimal conventions.
const WadPrecision = 18

// Wad returns the fixed-point scale (1e18) as a fresh big.Int.
func Wad() *big.Int {
	return new(big.Int).Set(wad)
}

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(WadPrecision), nil)

// intPool recycles big.Ints used for intermediate products.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// Mul returns a * b as a fresh big.Int.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// WadMul returns a * b / 1e18, truncating toward zero.
// Used for pool swap proceeds where prices are 1e18-scaled.
func WadMul(a, b *big.Int) *big.Int {
	prod := getInt()
	prod.Mul(a, b)
	result := new(big.Int).Quo(prod, wad)
	putInt(prod)
	return result
}

// WadDiv returns a * 1e18 / b, truncating toward zero.
// Used for ratio pricing (buy pool over sell pool).
func WadDiv(a, b *big.Int) *big.Int {
	prod := getInt()
	prod.Mul(a, wad)
	result := new(big.Int).Quo(prod, b)
	putInt(prod)
	return result
}

// Thousandths returns a * n / 1000, truncating toward zero.
// Fee numerators are expressed out of 1000.
func Thousandths(a *big.Int, n int64) *big.Int {
	prod := getInt()
	prod.Mul(a, big.NewInt(n))
	result := new(big.Int).Quo(prod, big.NewInt(1000))
	putInt(prod)
	return result
}

// IsPositive reports whether v is non-nil and strictly greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Clone returns a defensive copy of v (nil stays nil).
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
