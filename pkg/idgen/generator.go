package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	AccountNumberPrefix = "ACC"
	TransactionIDPrefix = "TXN"
)

// Generator builds account numbers and transaction ids from the wall clock
// and a random suffix.
//
// It never consults storage, so the ids are only probably unique. Callers
// must rely on the store's unique index and retry on ErrDuplicate.
type Generator struct {
	now  func() time.Time
	rand io.Reader
}

// NewGenerator returns a Generator using time.Now and crypto/rand.
func NewGenerator() *Generator {
	return &Generator{now: time.Now, rand: rand.Reader}
}

// NewGeneratorWith is NewGenerator with an injected clock and random source.
func NewGeneratorWith(now func() time.Time, random io.Reader) *Generator {
	return &Generator{now: now, rand: random}
}

// NewAccountNumber 生成账号
// 格式：ACC + yyyyMMddHHmmss + 4位随机数，例如 ACC202401151430524821
func (g *Generator) NewAccountNumber() string {
	ts := g.now().Format("20060102150405")
	return fmt.Sprintf("%s%s%04d", AccountNumberPrefix, ts, g.randomIn(1000, 9999))
}

// NewTransactionID 生成流水号
// 格式：TXN + yyyyMMddHHmmssSSS + 5位随机数
func (g *Generator) NewTransactionID() string {
	now := g.now()
	ts := now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))
	return fmt.Sprintf("%s%s%05d", TransactionIDPrefix, ts, g.randomIn(10000, 99999))
}

// randomIn returns a uniformly distributed number in [lo, hi]. If the random
// source fails it falls back to the clock's nanoseconds, which is still in range.
func (g *Generator) randomIn(lo, hi int64) int64 {
	span := big.NewInt(hi - lo + 1)
	n, err := rand.Int(g.rand, span)
	if err != nil {
		return lo + int64(g.now().Nanosecond())%span.Int64()
	}
	return lo + n.Int64()
}
