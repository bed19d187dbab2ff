package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM orders WHERE id = ?":                     "SELECT",
		"  update coupons set usage_count = usage_count + 1":    "UPDATE",
		"WITH cte AS (SELECT 1) DELETE FROM coupon_redemptions": "SELECT",
		"":            "UNKNOWN",
		"VACUUM":      "UNKNOWN",
		"(INSERT ...": "INSERT",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestIsLockingQuery(t *testing.T) {
	if !isLockingQuery("SELECT * FROM orders WHERE payment_reference = ? for update") {
		t.Fatalf("expected FOR UPDATE to be detected")
	}
	if isLockingQuery("SELECT * FROM orders") {
		t.Fatalf("expected plain select to be non-locking")
	}
}
