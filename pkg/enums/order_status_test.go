package enums

import "testing"

func TestParseOverrideOrderStatus(t *testing.T) {
	for _, status := range OverrideOrderStatuses() {
		got, err := ParseOverrideOrderStatus(" " + string(status) + " ")
		if err != nil {
			t.Fatalf("expected %q to parse: %v", status, err)
		}
		if got != status {
			t.Fatalf("expected %q got %q", status, got)
		}
	}

	if _, err := ParseOverrideOrderStatus("confirmed_fulfilled"); err == nil {
		t.Fatalf("derived statuses must not be accepted as overrides")
	}
	if _, err := ParseOverrideOrderStatus("shipped"); err == nil {
		t.Fatalf("unknown status must be rejected")
	}
}

func TestParseOrderStatusAcceptsDerived(t *testing.T) {
	got, err := ParseOrderStatus("CONFIRMED_PARTIAL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OrderStatusConfirmedPartial {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestOrderStatusLabelFallsBackToPending(t *testing.T) {
	if OrderStatus("bogus").Label() != "Pending" {
		t.Fatalf("unknown status should render as pending")
	}
	if OrderStatusRTO.Label() != "RTO" {
		t.Fatalf("unexpected rto label %q", OrderStatusRTO.Label())
	}
}
