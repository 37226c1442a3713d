package orders

import (
	"errors"
	"strings"
	"testing"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var e *apperr.Error
	require.True(t, errors.As(err, &e), "expected *apperr.Error, got %v", err)
	require.Equal(t, apperr.CodeValidation, e.Code)
	return e.Fields
}

func TestValidateNewOrder(t *testing.T) {
	valid := NewOrder{
		BowlID:       " bowl-A1 ",
		CustomerName: "  Siti ",
		Preferences:  Preferences{Broth: BrothSemiDry, SpicyLevel: 5, Taste: TasteSavory, ExtraNotes: "no onion"},
	}

	got, err := ValidateNewOrder(valid)
	require.NoError(t, err)
	assert.Equal(t, "bowl-A1", got.BowlID)
	assert.Equal(t, "Siti", got.CustomerName)

	cases := []struct {
		name  string
		edit  func(*NewOrder)
		field string
	}{
		{"missing bowl", func(o *NewOrder) { o.BowlID = "" }, "bowlId"},
		{"blank name", func(o *NewOrder) { o.CustomerName = "   " }, "customerName"},
		{"long name", func(o *NewOrder) { o.CustomerName = strings.Repeat("a", 51) }, "customerName"},
		{"unknown broth", func(o *NewOrder) { o.Preferences.Broth = "kuah" }, "preferences.broth"},
		{"spicy too low", func(o *NewOrder) { o.Preferences.SpicyLevel = 0 }, "preferences.spicyLevel"},
		{"spicy too high", func(o *NewOrder) { o.Preferences.SpicyLevel = 6 }, "preferences.spicyLevel"},
		{"unknown taste", func(o *NewOrder) { o.Preferences.Taste = "umami" }, "preferences.taste"},
		{"long notes", func(o *NewOrder) { o.Preferences.ExtraNotes = strings.Repeat("x", 201) }, "preferences.extraNotes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.edit(&in)
			_, err := ValidateNewOrder(in)
			assert.Contains(t, fieldsOf(t, err), tc.field)
		})
	}
}

func TestValidateNewOrderReportsEveryField(t *testing.T) {
	_, err := ValidateNewOrder(NewOrder{})
	fields := fieldsOf(t, err)

	assert.Len(t, fields, 5)
}

func TestValidateNameCountsRunes(t *testing.T) {
	in := NewOrder{
		BowlID:       "bowl-A1",
		CustomerName: strings.Repeat("é", 50),
		Preferences:  Preferences{Broth: BrothDry, SpicyLevel: 1, Taste: TasteSweet},
	}
	_, err := ValidateNewOrder(in)
	assert.NoError(t, err)
}

func TestValidatePrice(t *testing.T) {
	assert.NoError(t, ValidatePrice(1000))
	assert.NoError(t, ValidatePrice(10_000_000))
	assert.Contains(t, fieldsOf(t, ValidatePrice(999)), "price")
	assert.Contains(t, fieldsOf(t, ValidatePrice(10_000_001)), "price")
}

func TestValidateAdvanceTarget(t *testing.T) {
	s, err := ValidateAdvanceTarget("preparing")
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, s)

	_, err = ValidateAdvanceTarget("cooking")
	assert.Contains(t, fieldsOf(t, err), "status")
}
