package workerclient

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("call %d should be allowed", i)
		}
		b.After(boom)
	}

	if b.Allow() {
		t.Fatal("circuit should be open after threshold failures")
	}
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	boom := errors.New("boom")

	b.Allow()
	b.After(boom)
	b.Allow()
	b.After(nil)
	b.Allow()
	b.After(boom)

	if !b.Allow() {
		t.Fatal("single failure after success should not open the circuit")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 1})

	b.Allow()
	b.After(errors.New("boom"))

	if b.Allow() {
		t.Fatal("circuit should be open immediately after failure")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("cooldown elapsed, a half-open probe should be allowed")
	}
	if b.State() != "half_open" {
		t.Fatalf("state = %q, want half_open", b.State())
	}

	b.After(nil)

	if b.State() != "closed" {
		t.Fatalf("state = %q, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Allow()
	b.After(errors.New("boom"))

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("half-open probe should be allowed")
	}
	b.After(errors.New("still down"))

	if b.Allow() {
		t.Fatal("failed probe should reopen the circuit")
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 1})

	b.Allow()
	b.After(errors.New("boom"))

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("first probe should pass")
	}
	if b.Allow() {
		t.Fatal("second concurrent probe should be rejected")
	}
}
