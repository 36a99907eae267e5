package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	orderNumberAlphabet   = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	orderNumberCodeLength = 8

	defaultOrderNumberPrefix   = "ORD-"
	defaultInvoiceNumberPrefix = "INV-"
)

var orderNumberAlphabetSize = big.NewInt(int64(len(orderNumberAlphabet)))

// NewCodeGenerator returns a generator producing prefix followed by eight characters drawn
// uniformly from digits and upper-case letters without I and O.
func NewCodeGenerator(prefix string) func() (string, error) {
	return func() (string, error) {
		return randomCode(prefix)
	}
}

func randomCode(prefix string) (string, error) {
	buf := make([]byte, orderNumberCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, orderNumberAlphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = orderNumberAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
