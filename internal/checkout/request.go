package checkout

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type ItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	ImageURL  string          `json:"image_url"`
}

type AddressRequest struct {
	FullName             string `json:"full_name" validate:"required"`
	PhoneNumber          string `json:"phone_number" validate:"required"`
	AddressLine1         string `json:"address_line1" validate:"required"`
	AddressLine2         string `json:"address_line2"`
	City                 string `json:"city" validate:"required"`
	Region               string `json:"region" validate:"required"`
	DigitalAddress       string `json:"digital_address"`
	DeliveryInstructions string `json:"delivery_instructions"`
}

// CheckoutRequest is the POST /checkout payload. ExpectedTotal is what the
// customer saw on the review screen; the server recomputes and rejects a
// mismatch so stale carts never charge the wrong amount.
type CheckoutRequest struct {
	UserID          string          `json:"user_id"`
	Email           string          `json:"email" validate:"required,email"`
	CustomerName    string          `json:"customer_name" validate:"required"`
	CustomerPhone   string          `json:"customer_phone"`
	Items           []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress AddressRequest  `json:"shipping_address" validate:"required"`
	ShippingMethod  string          `json:"shipping_method" validate:"required"`
	Discount        decimal.Decimal `json:"discount"`
	ExpectedTotal   decimal.Decimal `json:"expected_total"`
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})
	return &Validator{validate: v}
}

// Check validates the request and, on failure, returns a field -> message
// map for the response body.
func (v *Validator) Check(req CheckoutRequest) (map[string]string, error) {
	err := v.validate.Struct(req)
	if err == nil {
		return nil, nil
	}

	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.StructNamespace()] = fe.Error()
		}
	} else {
		fields["request"] = err.Error()
	}
	return fields, err
}

// checkoutStructValidation enforces cross-field rules the tags cannot:
// item prices must be positive, the discount non-negative, and the total
// the client displayed must match what the server will charge.
func checkoutStructValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	subtotal := decimal.Zero
	for i, item := range req.Items {
		if item.Price.Sign() <= 0 {
			sl.ReportError(item.Price, "price", "Price", "positive_price",
				"item "+req.Items[i].ProductID)
		}
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if req.Discount.Sign() < 0 {
		sl.ReportError(req.Discount, "discount", "Discount", "non_negative_discount", "")
	}

	if req.ExpectedTotal.Sign() != 0 {
		total := subtotal.Add(shippingCostFor(req.ShippingMethod)).Sub(req.Discount)
		if !total.Equal(req.ExpectedTotal) {
			sl.ReportError(req.ExpectedTotal, "expected_total", "ExpectedTotal", "total_mismatch",
				total.StringFixed(2))
		}
	}
}
