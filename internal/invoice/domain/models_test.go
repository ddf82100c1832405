package domain

import "testing"

func TestInvoiceTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaid, false},
		{StatusDraft, StatusCredited, false},
		{StatusSent, StatusViewed, true},
		{StatusSent, StatusOverdue, true},
		{StatusSent, StatusPaid, true},
		{StatusSent, StatusDraft, false},
		{StatusViewed, StatusPartiallyPaid, true},
		{StatusViewed, StatusCancelled, true},
		{StatusPartiallyPaid, StatusPaid, true},
		{StatusPartiallyPaid, StatusOverdue, true},
		{StatusOverdue, StatusPartiallyPaid, true},
		{StatusOverdue, StatusPaid, true},
		{StatusOverdue, StatusCredited, true},
		{StatusPaid, StatusCredited, true},
		{StatusPaid, StatusSent, false},
		{StatusCancelled, StatusSent, false},
		{StatusCredited, StatusPaid, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestInvoicePayable(t *testing.T) {
	payable := []Status{StatusSent, StatusViewed, StatusPartiallyPaid, StatusOverdue}
	for _, s := range payable {
		if !s.Payable() {
			t.Errorf("expected %s to accept payments", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusPaid, StatusCancelled, StatusCredited} {
		if s.Payable() {
			t.Errorf("expected %s to refuse payments", s)
		}
	}
}

func TestInvoiceCreditable(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusViewed, StatusPartiallyPaid, StatusOverdue, StatusPaid} {
		if !s.Creditable() {
			t.Errorf("expected %s to be creditable", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusCancelled, StatusCredited} {
		if s.Creditable() {
			t.Errorf("expected %s not to be creditable", s)
		}
	}
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []Method{MethodBankTransfer, MethodCard, MethodCheque, MethodCash, MethodDirectDebit, MethodGateway} {
		if !m.Valid() {
			t.Errorf("expected %s to be valid", m)
		}
	}
	if Method("PAYPAL").Valid() {
		t.Error("unknown method must be invalid")
	}
	if Method("").Valid() {
		t.Error("empty method must be invalid")
	}
}
