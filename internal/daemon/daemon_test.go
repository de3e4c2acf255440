package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tello-im/tello/internal/bus"
	"github.com/tello-im/tello/internal/identity"
	"github.com/tello-im/tello/internal/lock"
	"github.com/tello-im/tello/internal/service"
	"github.com/tello-im/tello/internal/status"
	"github.com/tello-im/tello/internal/store"
	intsync "github.com/tello-im/tello/internal/sync"
	"github.com/tello-im/tello/internal/transport"
	"go.uber.org/zap"
)

// TestEngineLifecycle wires the components the way registerLifecycle does
// and walks one full start → send → stop cycle against a temp account dir.
func TestEngineLifecycle(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tello-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	accountDir := filepath.Join(tmpDir, "test")
	if err := os.MkdirAll(accountDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(accountDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(accountDir, "tello.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	keyring, err := identity.LoadOrCreateKeyring(filepath.Join(accountDir, "wallet.key"))
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	remote := transport.NewMemoryLog()
	bridge := intsync.NewBridge(db, b, remote, logger)
	sess := service.NewSession(db, b, bridge, keyring, machine, logger, service.Options{})

	statusEvents, unsub := b.Subscribe(bus.KindEngineStatus, 8)
	defer unsub()

	// Start.
	if err := sess.Initialize(keyring.Address()); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-statusEvents:
		change := evt.Payload.(status.StatusChange)
		if change.To != status.Ready {
			t.Errorf("startup transition to %v, want Ready", change.To)
		}
	case <-time.After(time.Second):
		t.Fatal("no status transition on startup")
	}

	// One round trip through the running engine.
	peer, err := identity.NewKeyring()
	if err != nil {
		t.Fatal(err)
	}
	id, err := sess.Send(context.Background(), peer.Address(), "lifecycle check")
	if err != nil {
		t.Fatal(err)
	}
	m, err := db.GetMessage(id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != store.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", m.Status)
	}

	// Stop.
	sess.Cleanup()
	if machine.Current() != status.Stopped {
		t.Errorf("state after cleanup = %v, want Stopped", machine.Current())
	}
}

// TestLifecycleRestart verifies a second start on the same account directory
// reuses the persisted wallet and store.
func TestLifecycleRestart(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tello-restart-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	accountDir := filepath.Join(tmpDir, "test")
	if err := os.MkdirAll(accountDir, 0700); err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(accountDir, "wallet.key")
	dbPath := filepath.Join(accountDir, "tello.db")

	run := func() (string, int) {
		db, err := store.Open(dbPath)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = db.Close() }()
		if _, err := db.Migrate(); err != nil {
			t.Fatal(err)
		}
		keyring, err := identity.LoadOrCreateKeyring(keyPath)
		if err != nil {
			t.Fatal(err)
		}
		b := bus.New()
		bridge := intsync.NewBridge(db, b, nil, zap.NewNop())
		sess := service.NewSession(db, b, bridge, keyring, status.NewMachine(b), zap.NewNop(), service.Options{})
		if err := sess.Initialize(keyring.Address()); err != nil {
			t.Fatal(err)
		}
		defer sess.Cleanup()

		peer, err := identity.NewKeyring()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := sess.Send(context.Background(), peer.Address(), "persisted"); err != nil {
			t.Fatal(err)
		}
		page, err := sess.ListConversationsPage(0)
		if err != nil {
			t.Fatal(err)
		}
		return keyring.Address(), len(page.Conversations)
	}

	addr1, count1 := run()
	addr2, count2 := run()

	if addr1 != addr2 {
		t.Errorf("wallet address changed across restarts: %q vs %q", addr1, addr2)
	}
	if count1 != 1 || count2 != 2 {
		t.Errorf("conversation counts = %d, %d; want 1, 2", count1, count2)
	}
}

// TestSecondInstanceBlocked verifies the account lock keeps two engines off
// the same directory.
func TestSecondInstanceBlocked(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tello-lock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := lock.Acquire(tmpDir); err == nil {
		t.Fatal("second Acquire() on a held account dir should fail")
	}
}
