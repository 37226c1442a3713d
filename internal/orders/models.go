package orders

import "time"

type Broth string

const (
	BrothSoup    Broth = "soup"
	BrothDry     Broth = "dry"
	BrothSemiDry Broth = "semi-dry"
)

func (b Broth) Valid() bool {
	switch b {
	case BrothSoup, BrothDry, BrothSemiDry:
		return true
	}
	return false
}

type Taste string

const (
	TasteSpicy  Taste = "spicy"
	TasteSweet  Taste = "sweet"
	TasteSalty  Taste = "salty"
	TasteSour   Taste = "sour"
	TasteSavory Taste = "savory"
	TasteNormal Taste = "normal"
)

func (t Taste) Valid() bool {
	switch t {
	case TasteSpicy, TasteSweet, TasteSalty, TasteSour, TasteSavory, TasteNormal:
		return true
	}
	return false
}

type Preferences struct {
	Broth      Broth  `json:"broth"`
	SpicyLevel int    `json:"spicyLevel"`
	Taste      Taste  `json:"taste"`
	ExtraNotes string `json:"extraNotes,omitempty"`
}

type Bowl struct {
	ID        string    `json:"id"`
	IsActive  bool      `json:"isActive"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Order struct {
	ID            string         `json:"id"`
	BowlID        string         `json:"bowlId"`
	CustomerName  string         `json:"customerName"`
	Preferences   Preferences    `json:"preferences"`
	TotalPrice    *int64         `json:"totalPrice"` // nil selama waiting
	PaymentStatus PaymentStatus  `json:"paymentStatus"`
	PaymentMethod *PaymentMethod `json:"paymentMethod"`
	Status        Status         `json:"status"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"orderId"`
	Amount        int64         `json:"amount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NewOrder is the validated input of reserve-and-create.
type NewOrder struct {
	BowlID       string      `json:"bowlId"`
	CustomerName string      `json:"customerName"`
	Preferences  Preferences `json:"preferences"`
}
