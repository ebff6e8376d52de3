package reconcile

import (
	"testing"
	"time"
)

func TestLeaseAcquireAndRelease(t *testing.T) {
	l := newFileLease(t.TempDir())

	ok, err := l.Acquire("owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	// A second worker cannot take a live lease.
	ok, err = l.Acquire("owner-b", time.Minute)
	if err != nil {
		t.Fatalf("contended acquire: %v", err)
	}
	if ok {
		t.Fatalf("live lease handed to a second owner")
	}
	if err := l.Release("owner-b"); err == nil {
		t.Fatalf("non-owner release should fail")
	}
	if err := l.Release("owner-a"); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	// Released lease is free again.
	ok, err = l.Acquire("owner-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("post-release acquire: ok=%v err=%v", ok, err)
	}
}

func TestLeaseExpiredReplaced(t *testing.T) {
	l := newFileLease(t.TempDir())
	if ok, err := l.Acquire("owner-a", time.Millisecond); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	time.Sleep(1100 * time.Millisecond) // expiry granularity is one second
	ok, err := l.Acquire("owner-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expired lease should be replaceable: ok=%v err=%v", ok, err)
	}
}

func TestLeaseRenew(t *testing.T) {
	l := newFileLease(t.TempDir())
	if ok, _ := l.Acquire("owner-a", 2 * time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	if err := l.Renew("owner-b", time.Minute); err == nil {
		t.Fatalf("non-owner renew should fail")
	}
	if err := l.Renew("owner-a", time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}
	// Renewed lease stays held.
	if ok, _ := l.Acquire("owner-b", time.Minute); ok {
		t.Fatalf("renewed lease handed away")
	}
}
