package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const maxQueryLen = 512

// ParseQueryInt reads an optional bounded integer parameter.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be an integer", key).WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between %d and %d", key, min, max).WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// QueryString returns the trimmed parameter, capped to a sane length.
func QueryString(r *http.Request, key string) string {
	return SanitizeString(r.URL.Query().Get(key), maxQueryLen)
}

// RequiredQuery is QueryString that rejects a missing value.
func RequiredQuery(r *http.Request, key string) (string, error) {
	value := QueryString(r, key)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, key+" query parameter is required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// StoreDomain normalizes a store path segment and rejects anything that is not
// a hostname.
func StoreDomain(raw string) (string, error) {
	store := strings.ToLower(strings.TrimSpace(raw))
	if err := validate.Var(store, "required,store_domain"); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "store must be a store domain").WithDetails(map[string]any{"field": "store"})
	}
	return store, nil
}
