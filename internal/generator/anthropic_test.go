package generator

import (
	"net"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"[1,2,3]":                "[1,2,3]",
		"```json\n[1,2,3]\n```":  "[1,2,3]",
		"```\n[1,2,3]\n```":      "[1,2,3]",
		"  [1,2,3]  ":            "[1,2,3]",
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlatten(t *testing.T) {
	nodes := []genNode{
		{TempID: "t1", Children: []genNode{
			{TempID: "t2"},
			{TempID: "t3", Children: []genNode{{TempID: "t4"}}},
		}},
	}
	flat := flatten(nodes)
	if len(flat) != 4 {
		t.Fatalf("flatten produced %d nodes, want 4", len(flat))
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	var netErr net.Error = timeoutErr{}
	if !isRetryable(netErr) {
		t.Error("a timing-out net.Error should be retryable")
	}
	if isRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	serverErr := &anthropic.Error{StatusCode: 503}
	if !isRetryable(serverErr) {
		t.Error("a 503 should be retryable")
	}
	clientErr := &anthropic.Error{StatusCode: 400}
	if isRetryable(clientErr) {
		t.Error("a 400 should not be retryable")
	}
}

func TestNewAnthropicRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropic("", false, "test"); err == nil {
		t.Error("expected ErrAPIKeyRequired when no key is available")
	}
}
