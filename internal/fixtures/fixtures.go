// Package fixtures loads catalogue seed data for local and staging environments.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

// File is the YAML document layout accepted by Decode.
type File struct {
	Products []Product `yaml:"products"`
	Coupons  []Coupon  `yaml:"coupons"`
	Blocked  []Blocked `yaml:"blocklist"`
}

// Product describes one catalogue entry.
type Product struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	SKU    string  `yaml:"sku"`
	Price  float64 `yaml:"price"`
	Stock  int     `yaml:"stock"`
	Active *bool   `yaml:"active"`
}

// Coupon describes one promotion code.
type Coupon struct {
	ID             string     `yaml:"id"`
	Code           string     `yaml:"code"`
	Type           string     `yaml:"type"`
	Value          float64    `yaml:"value"`
	MinOrderAmount float64    `yaml:"minOrderAmount"`
	ExpiresAt      *time.Time `yaml:"expiresAt"`
	MaxUsage       *int       `yaml:"maxUsage"`
	Active         *bool      `yaml:"active"`
}

// Blocked describes a network address rejected before rate accounting.
type Blocked struct {
	Address string `yaml:"address"`
	Reason  string `yaml:"reason"`
}

// Result counts the records written by Apply.
type Result struct {
	Products int
	Coupons  int
	Blocked  int
}

// Decode parses and validates a fixture document.
func Decode(r io.Reader) (File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("fixtures: decode: %w", err)
	}
	if err := file.validate(); err != nil {
		return File{}, err
	}
	return file, nil
}

func (f File) validate() error {
	var problems []string
	seen := make(map[string]struct{}, len(f.Products))
	for i, p := range f.Products {
		switch {
		case strings.TrimSpace(p.ID) == "":
			problems = append(problems, fmt.Sprintf("products[%d]: id is required", i))
		case p.Price < 0:
			problems = append(problems, fmt.Sprintf("products[%d]: price must not be negative", i))
		case p.Stock < 0:
			problems = append(problems, fmt.Sprintf("products[%d]: stock must not be negative", i))
		}
		if _, dup := seen[p.ID]; dup {
			problems = append(problems, fmt.Sprintf("products[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	for i, c := range f.Coupons {
		if strings.TrimSpace(c.Code) == "" {
			problems = append(problems, fmt.Sprintf("coupons[%d]: code is required", i))
		}
		switch domain.DiscountType(strings.ToUpper(strings.TrimSpace(c.Type))) {
		case domain.DiscountTypePercentage:
			if c.Value <= 0 || c.Value > 100 {
				problems = append(problems, fmt.Sprintf("coupons[%d]: percentage must be in (0, 100]", i))
			}
		case domain.DiscountTypeFixed:
			if c.Value <= 0 {
				problems = append(problems, fmt.Sprintf("coupons[%d]: value must be positive", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("coupons[%d]: unknown type %q", i, c.Type))
		}
	}
	for i, b := range f.Blocked {
		if strings.TrimSpace(b.Address) == "" {
			problems = append(problems, fmt.Sprintf("blocklist[%d]: address is required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("fixtures: invalid document: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Apply upserts every product, coupon and blocked address in file.
func Apply(ctx context.Context, reg repositories.Registry, file File, now time.Time) (Result, error) {
	var res Result
	for _, p := range file.Products {
		product := domain.Product{
			ID:        strings.TrimSpace(p.ID),
			Name:      strings.TrimSpace(p.Name),
			SKU:       strings.TrimSpace(p.SKU),
			Price:     domain.RoundMoney(p.Price),
			Stock:     p.Stock,
			Active:    p.Active == nil || *p.Active,
			UpdatedAt: now,
		}
		if err := reg.Products().Upsert(ctx, product); err != nil {
			return res, fmt.Errorf("fixtures: upsert product %s: %w", product.ID, err)
		}
		res.Products++
	}
	for _, c := range file.Coupons {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = code
		}
		coupon := domain.Coupon{
			ID:             id,
			Code:           code,
			Active:         c.Active == nil || *c.Active,
			DiscountType:   domain.DiscountType(strings.ToUpper(strings.TrimSpace(c.Type))),
			DiscountValue:  c.Value,
			MinOrderAmount: c.MinOrderAmount,
			ExpiresAt:      c.ExpiresAt,
			MaxUsage:       c.MaxUsage,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := reg.Coupons().Upsert(ctx, coupon); err != nil {
			return res, fmt.Errorf("fixtures: upsert coupon %s: %w", code, err)
		}
		res.Coupons++
	}
	for _, b := range file.Blocked {
		entry := domain.BlockedAddress{
			Address:   strings.TrimSpace(b.Address),
			Reason:    strings.TrimSpace(b.Reason),
			CreatedAt: now,
		}
		if err := reg.Blocklist().Block(ctx, entry); err != nil {
			return res, fmt.Errorf("fixtures: block %s: %w", entry.Address, err)
		}
		res.Blocked++
	}
	return res, nil
}
