package domain

import "math"

// RoundMoney rounds an amount to two decimals, half away from zero.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// OrderTotal computes round2(subtotal + tax + shipping - discount).
func OrderTotal(subtotal, tax, shipping, discount float64) float64 {
	return RoundMoney(subtotal + tax + shipping - discount)
}

// LineTotal computes the rounded total of a line item.
func LineTotal(quantity int, price float64) float64 {
	return RoundMoney(float64(quantity) * price)
}

// MoneyEqual compares two amounts at cent precision.
func MoneyEqual(a, b float64) bool {
	return math.Abs(RoundMoney(a)-RoundMoney(b)) < 0.005
}
