package core

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
)

// computeStateDigest serializes the full in-memory state into a canonical
// byte stream and hashes it. Component snapshots already walk their maps in
// sorted order; strings and big integers are length-prefixed so adjacent
// fields cannot alias. Called with the engine mutex held.
func (e *Engine) computeStateDigest() []byte {
	h := sha256.New()
	buf := make([]byte, 0, 512)

	buf = appendString(buf, "nonce")
	buf = appendUint64LE(buf, e.nonce)

	for _, t := range e.tokens.Snapshot() {
		buf = appendString(buf, "token")
		buf = append(buf, t.Address.Bytes()...)
		buf = appendBig(buf, t.TotalSupply)
		for _, b := range t.Balances {
			buf = append(buf, b.Account.Bytes()...)
			buf = appendBig(buf, b.Balance)
		}
		buf = appendString(buf, "allow")
		for _, a := range t.Allowances {
			buf = append(buf, a.Owner.Bytes()...)
			buf = append(buf, a.Spender.Bytes()...)
			buf = appendBig(buf, a.Amount)
		}
		h.Write(buf)
		buf = buf[:0]
	}

	for _, m := range e.registry.Snapshot() {
		buf = appendString(buf, "market")
		buf = appendInt64LE(buf, m.ID)
		buf = appendBig(buf, m.State.CurrentPrice)
		buf = appendBig(buf, m.State.TotalLiquidity)
		buf = appendBool(buf, m.State.Resolved)
		buf = appendString(buf, m.State.Outcome)
		for _, b := range m.Bets {
			buf = append(buf, b.Bettor.Bytes()...)
			buf = appendString(buf, b.Outcome)
			buf = appendBig(buf, b.Amount)
		}
		h.Write(buf)
		buf = buf[:0]
	}

	pt, ptSet := e.book.PriceToken()
	buf = appendString(buf, "book")
	buf = appendBool(buf, ptSet)
	buf = append(buf, pt.Bytes()...)
	buf = appendInt64LE(buf, e.book.Fee())
	for _, p := range e.book.SortedPrices() {
		buf = append(buf, p.Token.Bytes()...)
		buf = appendBig(buf, p.Price)
	}
	h.Write(buf)
	buf = buf[:0]

	buf = appendString(buf, "pool")
	buf = appendInt64LE(buf, e.pool.Fee())
	for _, t := range e.pool.SortedTotals() {
		buf = append(buf, t.Token.Bytes()...)
		buf = appendBig(buf, t.Total)
	}
	for _, d := range e.pool.Snapshot().Deposits {
		buf = append(buf, d.Provider.Bytes()...)
		buf = append(buf, d.Token.Bytes()...)
		buf = appendBig(buf, d.Amount)
	}
	h.Write(buf)

	return h.Sum(nil)
}

func appendString(buf []byte, s string) []byte {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

// appendBig length-prefixes the big-endian magnitude. Amounts in this system
// are never negative, so the sign needs no encoding.
func appendBig(buf []byte, x *big.Int) []byte {
	if x == nil {
		x = new(big.Int)
	}
	b := x.Bytes()
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

func appendInt64LE(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}
