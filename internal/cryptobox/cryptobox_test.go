package cryptobox

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	box, err := NewFromBase64(key)
	if err != nil {
		t.Fatalf("NewFromBase64: %v", err)
	}

	sealed, err := box.Seal("sk-instance-secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "sk-instance-secret" {
		t.Fatal("sealed value must not equal plaintext")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "sk-instance-secret" {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestSealEmptyStaysEmpty(t *testing.T) {
	box, err := New(make([]byte, 32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := box.Seal("")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed != "" {
		t.Fatalf("expected empty seal, got %q", sealed)
	}
	opened, err := box.Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "" {
		t.Fatalf("expected empty open, got %q", opened)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, err := New(make([]byte, 32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := box.Seal("top secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := sealed[:len(sealed)-4] + "abcd"
	if _, err := box.Open(tampered); err == nil {
		t.Fatal("expected error opening tampered ciphertext")
	}
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	if _, err := New([]byte("short")); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
