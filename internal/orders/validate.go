package orders

import (
	"strings"
	"unicode/utf8"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
)

const (
	MaxCustomerName = 50
	MaxExtraNotes   = 200
	MinSpicyLevel   = 1
	MaxSpicyLevel   = 5
	MinPrice        = 1000
	MaxPrice        = 10_000_000
)

// ValidateNewOrder checks and normalizes createOrder input. Every failing
// field is reported, not just the first.
func ValidateNewOrder(in NewOrder) (NewOrder, error) {
	fields := map[string]string{}

	in.BowlID = strings.TrimSpace(in.BowlID)
	if in.BowlID == "" {
		fields["bowlId"] = "required"
	}

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	switch n := utf8.RuneCountInString(in.CustomerName); {
	case n == 0:
		fields["customerName"] = "required"
	case n > MaxCustomerName:
		fields["customerName"] = "must be at most 50 characters"
	}

	p := in.Preferences
	if !p.Broth.Valid() {
		fields["preferences.broth"] = "must be one of soup, dry, semi-dry"
	}
	if p.SpicyLevel < MinSpicyLevel || p.SpicyLevel > MaxSpicyLevel {
		fields["preferences.spicyLevel"] = "must be between 1 and 5"
	}
	if !p.Taste.Valid() {
		fields["preferences.taste"] = "must be one of spicy, sweet, salty, sour, savory, normal"
	}
	in.Preferences.ExtraNotes = strings.TrimSpace(p.ExtraNotes)
	if utf8.RuneCountInString(in.Preferences.ExtraNotes) > MaxExtraNotes {
		fields["preferences.extraNotes"] = "must be at most 200 characters"
	}

	if len(fields) > 0 {
		return NewOrder{}, apperr.Validation(fields)
	}
	return in, nil
}

func ValidatePrice(price int64) error {
	if price < MinPrice {
		return apperr.Validation(map[string]string{"price": "must be at least 1000"})
	}
	if price > MaxPrice {
		return apperr.Validation(map[string]string{"price": "must be at most 10000000"})
	}
	return nil
}

// ValidateAdvanceTarget rejects targets that are not lifecycle statuses at
// all; lifecycle legality is checked against the stored row.
func ValidateAdvanceTarget(raw string) (Status, error) {
	s, err := ParseStatus(raw)
	if err != nil {
		return "", apperr.Validation(map[string]string{"status": err.Error()})
	}
	return s, nil
}

func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(map[string]string{field: "required"})
	}
	return nil
}
