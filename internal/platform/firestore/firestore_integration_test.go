//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/Ngumi22/zami-web-sub001/internal/platform/config"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}
	if client == nil {
		t.Fatalf("provider returned nil client")
	}

	repo := pfirestore.NewBaseRepository[sampleEntity](provider, "samples", nil)

	if err := repo.Create(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, "sample-1", sampleEntity{Name: "beta"}); err == nil {
		t.Fatalf("expected conflict on duplicate create")
	} else if cls, ok := asClassifier(err); !ok || !cls.IsConflict() {
		t.Fatalf("expected conflict classification, got %v", err)
	}

	doc, err := repo.Get(ctx, "sample-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "sample-1" || doc.Data.Name != "alpha" || doc.Data.Count != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected update time to be set")
	}

	if err := repo.Update(ctx, "sample-1", []firestore.Update{{Path: "count", Value: firestore.Increment(2)}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "sample-1"); err != nil || doc.Data.Count != 3 {
		t.Fatalf("expected count=3 after increment, got %#v (%v)", doc.Data, err)
	}

	if _, err := repo.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected not found error")
	} else if cls, ok := asClassifier(err); !ok || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := provider.RunInTx(ctx, func(ctx context.Context) error {
		current, err := repo.Get(ctx, "sample-1")
		if err != nil {
			return err
		}
		current.Data.Count++
		return provider.RunInTx(ctx, func(ctx context.Context) error {
			return repo.Set(ctx, "sample-1", current.Data)
		})
	}); err != nil {
		t.Fatalf("unit of work failed: %v", err)
	}
	if doc, err = repo.Get(ctx, "sample-1"); err != nil || doc.Data.Count != 4 {
		t.Fatalf("expected count=4 after unit of work, got %#v (%v)", doc.Data, err)
	}

	errAbort := errors.New("abort")
	if err := provider.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Update(ctx, "sample-1", []firestore.Update{{Path: "count", Value: 100}}); err != nil {
			return err
		}
		return errAbort
	}); !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if doc, err = repo.Get(ctx, "sample-1"); err != nil || doc.Data.Count != 4 {
		t.Fatalf("expected rollback to keep count=4, got %#v (%v)", doc.Data, err)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("name", "==", "alpha")
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunInTx(cancelCtx, func(ctx context.Context) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

type repoClassifier interface {
	IsNotFound() bool
	IsConflict() bool
}

func asClassifier(err error) (repoClassifier, bool) {
	var cls repoClassifier
	ok := errors.As(err, &cls)
	return cls, ok
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
