package service

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"aster_bot/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	testKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testUser   = "0x63DD5aCC6b1aa0f563956C0e534DD30B6dcF7C4e"
	testSigner = "0x21cF8Ae13Bb72632562c6Fff438652Ba1a151bb0"
)

func TestMain(m *testing.M) {
	logger.UseNop()
	os.Exit(m.Run())
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testUser, testSigner, testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestSigningPayloadSortedCompactStrings(t *testing.T) {
	got, err := SigningPayload(Params{
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   "0.001",
		"reduceOnly": false,
		"recvWindow": int64(50000),
		"timestamp":  int64(1700000000000),
		"price":      nil,
	})
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	want := `{"quantity":"0.001","recvWindow":"50000","reduceOnly":"false","side":"BUY","symbol":"BTCUSDT","timestamp":"1700000000000"}`
	if got != want {
		t.Fatalf("payload\n got %s\nwant %s", got, want)
	}
}

func TestSigningPayloadNestedValuesBecomeJSONStrings(t *testing.T) {
	got, err := SigningPayload(Params{
		"ids":   []any{1, 2},
		"order": map[string]any{"b": 2, "a": "x"},
	})
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	want := `{"ids":"[\"1\",\"2\"]","order":"{\"a\":\"x\",\"b\":\"2\"}"}`
	if got != want {
		t.Fatalf("payload\n got %s\nwant %s", got, want)
	}
}

func TestSigningPayloadEscapesNonASCII(t *testing.T) {
	got, err := SigningPayload(Params{"note": "\u00e9 x"})
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	if got != `{"note":"\u00e9x"}` {
		t.Fatalf("got %s", got)
	}
}

func TestSignDeterministic(t *testing.T) {
	s := newTestSigner(t)
	payload := `{"recvWindow":"50000","symbol":"BTCUSDT","timestamp":"1700000000000"}`

	a, err := s.Sign(payload, 1700000000000000)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := s.Sign(payload, 1700000000000000)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a != b {
		t.Fatalf("signatures differ:\n%s\n%s", a, b)
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 2+130 {
		t.Fatalf("unexpected signature format %q", a)
	}

	c, err := s.Sign(payload, 1700000000000001)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if c == a {
		t.Fatal("different nonce must change the signature")
	}
}

func TestSignRecoversSignerKey(t *testing.T) {
	s := newTestSigner(t)
	payload := `{"symbol":"ETHUSDT"}`
	nonce := int64(42)

	sigHex, err := s.Sign(payload, nonce)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		t.Fatal(err)
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("v = %d, want 27/28", v)
	}
	sig[64] -= 27

	digest, err := s.Digest(payload, nonce)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := crypto.SigToPub(accounts.TextHash(digest), sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}

	key, _ := crypto.HexToECDSA(testKey)
	if got, want := crypto.PubkeyToAddress(*pub), crypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Fatalf("recovered %s, want %s", got.Hex(), want.Hex())
	}
}

// Эталон посчитан независимой реализацией: json.dumps(sort_keys=True) без пробелов,
// abi.encode(string,address,address,uint256), keccak, personal_sign (RFC 6979).
func TestSignMatchesReferenceVector(t *testing.T) {
	payload, err := SigningPayload(Params{
		"symbol":           "BTCUSDT",
		"side":             "BUY",
		"type":             "MARKET",
		"quantity":         "0.010",
		"positionSide":     "BOTH",
		"newClientOrderId": "caf\u00e9 \x7f<&>",
		"recvWindow":       int64(50000),
		"timestamp":        int64(1700000000123),
	})
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	wantPayload := `{"newClientOrderId":"caf\u00e9\u007f<&>","positionSide":"BOTH","quantity":"0.010","recvWindow":"50000","side":"BUY","symbol":"BTCUSDT","timestamp":"1700000000123","type":"MARKET"}`
	if payload != wantPayload {
		t.Fatalf("payload\n got %s\nwant %s", payload, wantPayload)
	}

	s := newTestSigner(t)
	const nonce = int64(1700000000123456)
	digest, err := s.Digest(payload, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(digest); got != "f94e556e90dcfdab59b9fe51f30812fdc3251ffd754c719f33729f9cebb2fe50" {
		t.Fatalf("digest = %s", got)
	}
	sig, err := s.Sign(payload, nonce)
	if err != nil {
		t.Fatal(err)
	}
	const want = "0xe490ddd7a380caafbfe76d62a9788e1d8cc3d7a50017c013212254e28260b6a6" +
		"11ae26cf8a388ce83b29a79e7b61f77749416f46e37c9e90c071f85a8a5322851b"
	if sig != want {
		t.Fatalf("signature\n got %s\nwant %s", sig, want)
	}
}

func TestSigningPayloadNestedEscaping(t *testing.T) {
	got, err := SigningPayload(Params{
		"batch": []any{map[string]any{"a": "\u00e9", "b": 2}, "x y"},
		"order": map[string]any{"a": "\u00e9", "b": 2},
	})
	if err != nil {
		t.Fatalf("SigningPayload: %v", err)
	}
	want := `{"batch":"[\"{\\\"a\\\":\\\"\\\\u00e9\\\",\\\"b\\\":\\\"2\\\"}\",\"xy\"]","order":"{\"a\":\"\\u00e9\",\"b\":\"2\"}"}`
	if got != want {
		t.Fatalf("payload\n got %s\nwant %s", got, want)
	}
}

func TestNewSignerRejectsBadInput(t *testing.T) {
	if _, err := NewSigner("nope", testSigner, testKey); err == nil {
		t.Error("expected error for bad user address")
	}
	if _, err := NewSigner(testUser, testSigner, "zz"); err == nil {
		t.Error("expected error for bad key")
	}
}
