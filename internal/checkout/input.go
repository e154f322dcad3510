package checkout

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/example/ec-storefront/internal/order"
	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
)

// ShippingInput is the checkout form. Prices never come from the client.
type ShippingInput struct {
	GuestEmail  string `form:"guest_email" validate:"omitempty,email,max=254"`
	FirstName   string `form:"shipping_first_name" validate:"required,max=100"`
	LastName    string `form:"shipping_last_name" validate:"required,max=100"`
	Address     string `form:"shipping_address" validate:"required,max=255"`
	City        string `form:"shipping_city" validate:"required,max=100"`
	CountryCode string `form:"shipping_country_code" validate:"required,country"`
	PhoneNumber string `form:"shipping_phone_number" validate:"required,phone_digits"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	_ = v.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		return isCountry(fl.Field().String())
	})
	_ = v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		n := len(digitsOnly(fl.Field().String()))
		return n >= 7 && n <= 15
	})
	return v
}

// isCountry accepts ISO 3166-1 alpha-2 country codes
func isCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	r, err := language.ParseRegion(code)
	return err == nil && r.IsCountry()
}

// ParseShippingForm reads a ShippingInput from form values
func ParseShippingForm(form url.Values) ShippingInput {
	get := func(k string) string { return strings.TrimSpace(form.Get(k)) }
	return ShippingInput{
		GuestEmail:  strings.ToLower(get("guest_email")),
		FirstName:   get("shipping_first_name"),
		LastName:    get("shipping_last_name"),
		Address:     get("shipping_address"),
		City:        get("shipping_city"),
		CountryCode: strings.ToUpper(get("shipping_country_code")),
		PhoneNumber: get("shipping_phone_number"),
	}
}

// Validate checks the form. defaultRegion drives phone number parsing; it is
// the signed-in user's country when known.
func (in ShippingInput) Validate(defaultRegion string) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Message: fieldMessage(fe)}
		}
		return &ValidationError{Message: err.Error()}
	}

	if num, err := phonenumbers.Parse(in.PhoneNumber, defaultRegion); err == nil && !phonenumbers.IsPossibleNumber(num) {
		return &ValidationError{
			Field:   "shipping_phone_number",
			Message: fmt.Sprintf("shipping_phone_number is not a possible number for region %s", defaultRegion),
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "country":
		return fmt.Sprintf("%s must be an ISO 3166-1 alpha-2 country code", fe.Field())
	case "phone_digits":
		return fmt.Sprintf("%s must contain between 7 and 15 digits", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// Shipping converts the form into the shipping block stored on the order
func (in ShippingInput) Shipping() order.ShippingInfo {
	return order.ShippingInfo{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Address:     in.Address,
		City:        in.City,
		CountryCode: in.CountryCode,
		PhoneNumber: in.PhoneNumber,
	}
}
