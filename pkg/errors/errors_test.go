package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeExternalAPI, status: http.StatusBadGateway, publicMsg: "storefront platform request failed", retryable: true, detailsOK: true},
		{code: CodePersistence, status: http.StatusServiceUnavailable, publicMsg: "storage unavailable", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := fmt.Errorf("sync store: %w", Wrap(CodeExternalAPI, cause, "fetch orders"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if !IsCode(err, CodeExternalAPI) {
		t.Fatalf("expected external api code in chain")
	}
	if IsCode(err, CodeConflict) {
		t.Fatalf("unexpected conflict code")
	}
	if got := As(err).Message(); got != "fetch orders" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pq.Error{Code: "23505", Constraint: "ux_wallet_transactions_idempotency_key"}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_wallet_transactions_idempotency_key") {
		t.Fatalf("expected pq unique violation to match")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatalf("foreign key violation must not match")
	}
	if !IsUniqueViolation(stdErrors.New("UNIQUE constraint failed: wallet_transactions.idempotency_key"), "ux_wallet_transactions_idempotency_key") {
		t.Fatalf("expected sqlite unique violation to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil must not match")
	}
}

func TestIsCodeFindsInnerTypedError(t *testing.T) {
	inner := New(CodeNotFound, "order missing")
	err := Wrap(CodeExternalAPI, fmt.Errorf("lookup: %w", inner), "push status")

	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected inner code to be found")
	}
	if !IsCode(err, CodeExternalAPI) {
		t.Fatalf("expected outer code to be found")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(CodePersistence, "db down"), true},
		{fmt.Errorf("sync: %w", New(CodeExternalAPI, "502")), true},
		{New(CodeValidation, "bad"), false},
		{stdErrors.New("plain"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	if got := Newf(CodeConflict, "balance %s", "10.00").Error(); got != "CONFLICT: balance 10.00" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Wrap(CodePersistence, stdErrors.New("timeout"), "save").Error(); got != "PERSISTENCE_ERROR: save: timeout" {
		t.Fatalf("unexpected wrapped message %q", got)
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !IsSerializationFailure(fmt.Errorf("apply: %w", &pq.Error{Code: "40001"})) {
		t.Fatalf("expected serialization failure")
	}
	if !IsSerializationFailure(&pq.Error{Code: "40P01"}) {
		t.Fatalf("expected deadlock to count")
	}
	if IsSerializationFailure(&pq.Error{Code: "23505"}) || IsSerializationFailure(nil) {
		t.Fatalf("unexpected match")
	}
}

func TestDumpCollectsPostgresFields(t *testing.T) {
	d := Dump(Wrap(CodePersistence, &pq.Error{Code: "23505", Constraint: "ux_orders", Table: "orders"}, "insert"))
	if d.Code != CodePersistence || d.PGCode != "23505" || d.PGConstraint != "ux_orders" || d.PGTable != "orders" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", d.Chain)
	}
}
