package signal

import (
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("attempt %d blocked inside the limit", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("attempt over the limit allowed")
	}

	// Another session has its own window.
	if !rl.Allow("b") {
		t.Fatal("unrelated session blocked")
	}

	// Window expiry frees the budget again.
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("attempt after window expiry blocked")
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	if !rl.Allow("a") {
		t.Fatal("first attempt blocked")
	}
	if rl.Allow("a") {
		t.Fatal("second attempt allowed")
	}
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("attempt after Forget blocked")
	}
}
