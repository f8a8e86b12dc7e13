// Package validators decodes and checks request input, turning every
// failure into a CodeValidation error with per-field details.
package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

// ErrEmptyBody is wrapped by DecodeJSONBody when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

var validate = newValidator()

// Custom tags:
//
//	order_status   a status an admin may set by hand
//	money          a non-negative decimal string
//	money_positive a decimal string greater than zero
//	store_domain   a storefront hostname such as acme.myshopify.com
var customTags = map[string]struct {
	check   validator.Func
	message string
}{
	"order_status": {
		check: func(fl validator.FieldLevel) bool {
			return enums.OrderStatus(normalized(fl)).IsOverride()
		},
		message: "must be a manual order status",
	},
	"money": {
		check: func(fl validator.FieldLevel) bool {
			d, ok := parseDecimal(fl)
			return ok && !d.IsNegative()
		},
		message: "must be a non-negative decimal amount",
	},
	"money_positive": {
		check: func(fl validator.FieldLevel) bool {
			d, ok := parseDecimal(fl)
			return ok && d.IsPositive()
		},
		message: "must be a decimal amount greater than zero",
	},
	"store_domain": {
		check: func(fl validator.FieldLevel) bool {
			return validate.Var(normalized(fl), "fqdn") == nil
		},
		message: "must be a store domain",
	},
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func init() {
	for tag, rule := range customTags {
		if err := validate.RegisterValidation(tag, rule.check); err != nil {
			panic(fmt.Sprintf("register %s validator: %v", tag, err))
		}
	}
}

func normalized(fl validator.FieldLevel) string {
	return strings.ToLower(strings.TrimSpace(fl.Field().String()))
}

func parseDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	return d, err == nil
}

// DecodeJSONBody decodes a single JSON object into dest, rejecting unknown
// fields and trailing data, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyBody, "request body required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return fieldErrors(err)
	}
	return nil
}

func fieldErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fieldPath(fe)] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the root struct name so nested errors read stores[1].
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	if rule, ok := customTags[fe.Tag()]; ok {
		return rule.message
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "fqdn":
		return "must be a hostname"
	}
	return "is invalid"
}
