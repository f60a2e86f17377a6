package db

import "testing"

func TestOpenGorm_Failure(t *testing.T) {
	// Unreachable host: Open should fail fast on ping rather than hang.
	if _, err := OpenGorm("baduser:badpass@tcp(127.0.0.1:1)/nodb?parseTime=true"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
