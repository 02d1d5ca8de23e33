package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeClient struct {
	calls  atomic.Int32
	values map[string]string
	err    error
}

func (f *fakeClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeClient) Close() error { return nil }

func TestResolveRemoteAndCache(t *testing.T) {
	client := &fakeClient{values: map[string]string{
		"projects/techmart-dev/secrets/payments-verify/versions/3": "s3cr3t",
	}}
	fetcher, err := NewFetcher(context.Background(),
		WithDefaultProject("techmart-dev"),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		value, err := fetcher.Resolve(context.Background(), "secret://payments/verify@3")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if value != "s3cr3t" {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if got := client.calls.Load(); got != 1 {
		t.Fatalf("expected cached second lookup, got %d remote calls", got)
	}
}

func TestResolveFallsBackToLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# local development\nsecret://tokens/signing=\"local-token\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := &fakeClient{err: status.Error(codes.PermissionDenied, "denied")}
	fetcher, err := NewFetcher(context.Background(),
		WithDefaultProject("techmart-dev"),
		WithSecretManagerClient(client),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.ResolveSecret(context.Background(), "secret://tokens/signing")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "local-token" {
		t.Fatalf("unexpected fallback value %q", value)
	}
}

func TestResolveDoesNotFallBackOnHardErrors(t *testing.T) {
	client := &fakeClient{err: status.Error(codes.InvalidArgument, "bad name")}
	fetcher, err := NewFetcher(context.Background(),
		WithDefaultProject("techmart-dev"),
		WithSecretManagerClient(client),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://tokens/signing"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		ref     string
		secret  string
		version string
		project string
	}{
		{"secret://tokens/signing", "tokens-signing", "latest", ""},
		{"secret://payments/verify@3", "payments-verify", "3", ""},
		{"sm://hmac@7", "hmac", "7", ""},
		{"secret://stripe/api?version=2&project=other", "stripe-api", "2", "other"},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			parsed, err := parseReference(tc.ref)
			if err != nil {
				t.Fatalf("parseReference: %v", err)
			}
			if parsed.Secret != tc.secret || parsed.Version != tc.version || parsed.Project != tc.project {
				t.Fatalf("unexpected parse %+v", parsed)
			}
		})
	}

	if _, err := parseReference("https://example.com/x"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}
