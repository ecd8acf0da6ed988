package model

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testCreds = Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret", SessionToken: "tok"}

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(Config{
		Endpoint:        url,
		Region:          "us-east-1",
		ModelID:         "anthropic.claude-v2",
		MaxOutputTokens: 500,
		Temperature:     0.5,
		StopSequences:   []string{"\n\nHuman:"},
		Timeout:         timeout,
		Credentials:     testCreds,
		Logger:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return c
}

func TestCompleteSendsSignedRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/model/anthropic.claude-v2/invoke" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type: %q", ct)
		}
		if a := r.Header.Get("Accept"); a != "application/json" {
			t.Errorf("accept: %q", a)
		}
		if d := r.Header.Get("x-amz-date"); d != "20260304T050607Z" {
			t.Errorf("x-amz-date: %q", d)
		}
		if tok := r.Header.Get("x-amz-security-token"); tok != "tok" {
			t.Errorf("session token: %q", tok)
		}
		auth := r.Header.Get("Authorization")
		wantPrefix := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260304/us-east-1/bedrock/aws4_request, " +
			"SignedHeaders=host;x-amz-content-sha256;x-amz-date;x-amz-security-token, Signature="
		if !strings.HasPrefix(auth, wantPrefix) {
			t.Errorf("authorization: %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if h := r.Header.Get("x-amz-content-sha256"); h != sha256Hex(body) {
			t.Errorf("payload hash mismatch")
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"completion":" <code>chat(hi)</code>","stop_reason":"stop_sequence"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	out, err := c.Complete(context.Background(), c.NewRequest("Human: hi\n//hi\n\nAssistant:"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != " <code>chat(hi)</code>" {
		t.Fatalf("completion: %q", out)
	}
	if got.Prompt != "Human: hi\n//hi\n\nAssistant:" || got.MaxTokensToSample != 500 || got.Temperature != 0.5 {
		t.Fatalf("request body: %+v", got)
	}
	if len(got.StopSequences) != 1 || got.StopSequences[0] != "\n\nHuman:" {
		t.Fatalf("stop sequences: %+v", got.StopSequences)
	}
}

func TestCompleteEscapesModelID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/model/anthropic.claude-v2%3A1/invoke" {
			t.Errorf("path: %q", r.URL.EscapedPath())
		}
		_, _ = w.Write([]byte(`{"completion":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	c.cfg.ModelID = "anthropic.claude-v2:1"
	if _, err := c.Complete(context.Background(), c.NewRequest("x")); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"throttled"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	_, err := c.Generate(context.Background(), "x")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "status=429") || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("error should carry status and excerpt: %v", err)
	}
	if out := c.Invoke(context.Background(), "x"); out != "" {
		t.Fatalf("Invoke should swallow failure, got %q", out)
	}
}

func TestInvokeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	start := time.Now()
	if out := c.Invoke(context.Background(), "x"); out != "" {
		t.Fatalf("expected empty completion, got %q", out)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
	if _, err := c.Generate(context.Background(), "x"); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Region: "us-east-1", ModelID: "m"})
	if err == nil {
		t.Fatalf("expected error without credentials")
	}
	c, err := New(Config{Region: "eu-west-1", ModelID: "m", Credentials: testCreds})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.endpoint != "https://bedrock-runtime.eu-west-1.amazonaws.com" {
		t.Fatalf("endpoint: %s", c.endpoint)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", " AK ")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SK")
	t.Setenv("AWS_SESSION_TOKEN", "")
	c, err := CredentialsFromEnv()
	if err != nil {
		t.Fatalf("CredentialsFromEnv: %v", err)
	}
	if c.AccessKeyID != "AK" || c.SecretAccessKey != "SK" || c.SessionToken != "" {
		t.Fatalf("creds: %+v", c)
	}

	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	if _, err := CredentialsFromEnv(); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestDeriveSigningKey(t *testing.T) {
	// Published SigV4 signing key example.
	got := hex.EncodeToString(deriveSigningKey("wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY", "20120215", "us-east-1", "iam"))
	want := "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d"
	if got != want {
		t.Fatalf("signing key: got %s want %s", got, want)
	}
}
