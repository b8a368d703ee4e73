package peer

import (
	"strings"
	"testing"
)

const validUpgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n\r\n"

func TestParseUpgradeRequestComputesAccept(t *testing.T) {
	hdr, err := ParseUpgradeRequest([]byte(validUpgradeRequest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// RFC 6455 §1.3 worked example.
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got := hdr.Get("Sec-WebSocket-Accept"); got != want {
		t.Fatalf("accept = %q, want %q", got, want)
	}
}

func TestParseUpgradeRequestRejectsWrongVersion(t *testing.T) {
	raw := strings.Replace(validUpgradeRequest, "Sec-WebSocket-Version: 13", "Sec-WebSocket-Version: 8", 1)
	_, err := ParseUpgradeRequest([]byte(raw))
	if err != errBadWebSocketVersion {
		t.Fatalf("expected errBadWebSocketVersion, got %v", err)
	}
}

func TestParseUpgradeRequestRejectsMissingKey(t *testing.T) {
	raw := strings.Replace(validUpgradeRequest, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1)
	_, err := ParseUpgradeRequest([]byte(raw))
	if err != errMissingWebSocketKey {
		t.Fatalf("expected errMissingWebSocketKey, got %v", err)
	}
}

func TestParseUpgradeRequestRejectsNonUpgrade(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	_, err := ParseUpgradeRequest([]byte(raw))
	if err != errInvalidUpgradeHeaders {
		t.Fatalf("expected errInvalidUpgradeHeaders, got %v", err)
	}
}

func TestHeaderBlockComplete(t *testing.T) {
	if HeaderBlockComplete([]byte("GET / HTTP/1.1\r\nHost: x\r\n")) {
		t.Fatalf("expected incomplete header block")
	}
	if !HeaderBlockComplete([]byte(validUpgradeRequest)) {
		t.Fatalf("expected complete header block")
	}
}

func TestEncodeUpgradeResponseContainsStatusLine(t *testing.T) {
	hdr, err := ParseUpgradeRequest([]byte(validUpgradeRequest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resp := string(EncodeUpgradeResponse(hdr))
	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Fatalf("unexpected response: %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("missing accept header: %q", resp)
	}
}
