package estcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestEncode_Layout(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	pkg := NewPackage(WriteEvents, id, []byte{0xDE, 0xAD})

	got := Encode(pkg)

	want := append([]byte{}, id[:]...)
	want = append(want, byte(WriteEvents), byte(FlagNone), 0xDE, 0xAD)
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = %x, want %x", got, want)
	}
	if len(got) != pkg.Size() {
		t.Errorf("len = %d, Size() = %d", len(got), pkg.Size())
	}
}

func TestEncode_AuthenticatedLayout(t *testing.T) {
	id := uuid.New()
	pkg := NewAuthenticatedPackage(ReadEvent, id, Credentials{Login: "admin", Password: "changeit"}, []byte("p"))

	got := Encode(pkg)

	if got[flagsOffset] != byte(FlagAuthenticated) {
		t.Fatalf("flags = %x, want %x", got[flagsOffset], FlagAuthenticated)
	}

	off := HeaderSize
	if n := binary.LittleEndian.Uint32(got[off:]); n != 5 {
		t.Errorf("login length = %d, want 5", n)
	}
	off += 4
	if s := string(got[off : off+5]); s != "admin" {
		t.Errorf("login = %q, want admin", s)
	}
	off += 5
	if n := binary.LittleEndian.Uint32(got[off:]); n != 8 {
		t.Errorf("password length = %d, want 8", n)
	}
	off += 4
	if s := string(got[off : off+8]); s != "changeit" {
		t.Errorf("password = %q, want changeit", s)
	}
	off += 8
	if s := string(got[off:]); s != "p" {
		t.Errorf("payload = %q, want p", s)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	id := uuid.New()
	packages := []Package{
		NewPackage(Ping, id, nil),
		NewPackage(HeartbeatResponse, id, []byte{}),
		NewPackage(WriteEvents, id, bytes.Repeat([]byte{0x42}, 1024)),
		NewAuthenticatedPackage(TransactionCommit, id, Credentials{Login: "admin", Password: "changeit"}, []byte{1, 2, 3}),
		NewAuthenticatedPackage(ReadAllEventsForward, id, Credentials{}, nil),
		NewPackage(WriteEvents, id, []byte("trusted")).WithFlags(FlagTrustedWrite),
	}

	for _, pkg := range packages {
		got, err := Decode(Encode(pkg))
		if err != nil {
			t.Errorf("%s: Decode failed: %v", pkg, err)
			continue
		}
		if !reflect.DeepEqual(got, pkg) {
			t.Errorf("round trip = %+v, want %+v", got, pkg)
		}
	}
}

func TestDecode_PreservesUnknownFlags(t *testing.T) {
	data := Encode(NewPackage(Pong, uuid.New(), []byte("x")))
	data[flagsOffset] = 0x80

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Flags() != 0x80 {
		t.Errorf("flags = %x, want 80", got.Flags())
	}
	if _, ok := got.Credentials(); ok {
		t.Error("unexpected credentials")
	}

	if !bytes.Equal(Encode(got), data) {
		t.Error("re-encoding changed the bytes")
	}
}

func TestDecode_ShortHeader(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
}

func TestDecode_UnknownCommand(t *testing.T) {
	data := Encode(NewPackage(Ping, uuid.New(), nil))
	data[commandOffset] = 0x99

	_, err := Decode(data)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
}

func TestDecode_TruncatedCredentials(t *testing.T) {
	full := Encode(NewAuthenticatedPackage(Ping, uuid.New(), Credentials{Login: "admin", Password: "changeit"}, nil))

	// Cut inside the login length, the login, the password length and the password.
	for _, n := range []int{HeaderSize + 2, HeaderSize + 6, HeaderSize + 11, len(full) - 1} {
		_, err := Decode(full[:n])
		if !errors.Is(err, ErrFraming) {
			t.Errorf("len %d: expected ErrFraming, got %v", n, err)
		}
	}
}

func TestDecode_OversizedCredentialLength(t *testing.T) {
	data := Encode(NewAuthenticatedPackage(Ping, uuid.New(), Credentials{Login: "a", Password: "b"}, nil))
	binary.LittleEndian.PutUint32(data[HeaderSize:], 0xFFFFFFFF)

	_, err := Decode(data)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	data := Encode(NewPackage(Ping, uuid.New(), []byte("abc")))

	pkg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for i := range data {
		data[i] = 0
	}

	if string(pkg.Payload()) != "abc" {
		t.Errorf("payload = %q, want abc", pkg.Payload())
	}
}

func TestPackage_PayloadIsCopy(t *testing.T) {
	payload := []byte("abc")
	pkg := NewPackage(Ping, uuid.New(), payload)

	payload[0] = 'x'
	got := pkg.Payload()
	got[1] = 'y'

	if string(pkg.Payload()) != "abc" {
		t.Errorf("payload = %q, want abc", pkg.Payload())
	}
}

func TestPackage_WithFlagsKeepsAuthentication(t *testing.T) {
	pkg := NewPackage(Ping, uuid.New(), nil).WithFlags(FlagAuthenticated | FlagTrustedWrite)

	if pkg.Flags().Has(FlagAuthenticated) {
		t.Error("WithFlags must not mark a package authenticated")
	}
	if !pkg.Flags().Has(FlagTrustedWrite) {
		t.Error("trusted write flag not set")
	}
}

func TestCommand_String(t *testing.T) {
	if s := TransactionCommit.String(); s != "TransactionCommit" {
		t.Errorf("String = %s, want TransactionCommit", s)
	}
	if s := Command(0x99).String(); s != "Command(0x99)" {
		t.Errorf("String = %s, want Command(0x99)", s)
	}
	if Command(0x99).IsKnown() {
		t.Error("0x99 should not be known")
	}
	if !ClientIdentified.IsKnown() {
		t.Error("ClientIdentified should be known")
	}
}

func TestEncodeFrame_TooLarge(t *testing.T) {
	pkg := NewPackage(WriteEvents, uuid.New(), make([]byte, 100))

	_, err := encodeFrame(pkg, HeaderSize+99)
	if !errors.Is(err, ErrPackageTooLarge) {
		t.Errorf("expected ErrPackageTooLarge, got %v", err)
	}

	frame, err := encodeFrame(pkg, HeaderSize+100)
	if err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}
	if !bytes.Equal(frame, Frame(Encode(pkg))) {
		t.Error("encodeFrame differs from Frame(Encode(pkg))")
	}
}
