package estcp

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Wire layout constants.
const (
	// LengthPrefixSize is the size of the little-endian frame length prefix.
	LengthPrefixSize = 4
	// HeaderSize is the size of correlation id, command and flags.
	HeaderSize = correlationIDSize + 2
	// DefaultMaxFrameSize is the largest frame accepted by default (64MB).
	DefaultMaxFrameSize = 64 * 1024 * 1024

	correlationIDSize = 16
	commandOffset     = correlationIDSize
	flagsOffset       = commandOffset + 1
	credentialLenSize = 4
)

// Credentials is the login and password attached to authenticated packages.
type Credentials struct {
	Login    string
	Password string
}

// Package is the unit of protocol exchange. It is immutable: accessors
// return copies of any mutable data.
type Package struct {
	command       Command
	flags         Flags
	correlationID uuid.UUID
	credentials   Credentials
	payload       []byte
}

// NewPackage creates an unauthenticated package. The payload is copied.
func NewPackage(command Command, correlationID uuid.UUID, payload []byte) Package {
	return Package{
		command:       command,
		flags:         FlagNone,
		correlationID: correlationID,
		payload:       clone(payload),
	}
}

// NewAuthenticatedPackage creates a package carrying credentials.
func NewAuthenticatedPackage(command Command, correlationID uuid.UUID, creds Credentials, payload []byte) Package {
	return Package{
		command:       command,
		flags:         FlagAuthenticated,
		correlationID: correlationID,
		credentials:   creds,
		payload:       clone(payload),
	}
}

// WithFlags returns a copy of p with the extra flag bits set.
// FlagAuthenticated is ignored: credentials decide it.
func (p Package) WithFlags(flags Flags) Package {
	p.flags |= flags &^ FlagAuthenticated
	return p
}

func (p Package) Command() Command { return p.command }

func (p Package) Flags() Flags { return p.flags }

func (p Package) CorrelationID() uuid.UUID { return p.correlationID }

// Credentials returns the package credentials and whether the package is
// authenticated.
func (p Package) Credentials() (Credentials, bool) {
	if !p.flags.Has(FlagAuthenticated) {
		return Credentials{}, false
	}
	return p.credentials, true
}

// Payload returns a copy of the encoded protocol message.
func (p Package) Payload() []byte {
	return clone(p.payload)
}

// Size returns the number of bytes Encode produces for p.
func (p Package) Size() int {
	size := HeaderSize + len(p.payload)
	if p.flags.Has(FlagAuthenticated) {
		size += 2*credentialLenSize + len(p.credentials.Login) + len(p.credentials.Password)
	}
	return size
}

func (p Package) String() string {
	return fmt.Sprintf("%s{correlation_id=%s flags=0x%02X payload=%d}",
		p.command, p.correlationID, uint8(p.flags), len(p.payload))
}

// Encode returns the wire representation of p without the length prefix.
func Encode(p Package) []byte {
	buf := make([]byte, p.Size())
	encodeTo(buf, p)
	return buf
}

// encodeTo writes p into buf, which must be exactly p.Size() bytes.
func encodeTo(buf []byte, p Package) {
	copy(buf, p.correlationID[:])
	buf[commandOffset] = byte(p.command)
	buf[flagsOffset] = byte(p.flags)

	off := HeaderSize
	if p.flags.Has(FlagAuthenticated) {
		off = putString(buf, off, p.credentials.Login)
		off = putString(buf, off, p.credentials.Password)
	}
	copy(buf[off:], p.payload)
}

// Decode parses data produced by Encode. Nothing in the result aliases data.
func Decode(data []byte) (Package, error) {
	if len(data) < HeaderSize {
		return Package{}, errors.Wrapf(ErrFraming, "package of %d bytes is shorter than header size %d", len(data), HeaderSize)
	}

	var p Package
	copy(p.correlationID[:], data[:correlationIDSize])
	p.command = Command(data[commandOffset])
	p.flags = Flags(data[flagsOffset])

	if !p.command.IsKnown() {
		return Package{}, errors.Wrapf(ErrFraming, "unknown command 0x%02X", uint8(p.command))
	}

	off := HeaderSize
	if p.flags.Has(FlagAuthenticated) {
		var err error
		if p.credentials.Login, off, err = readString(data, off, "login"); err != nil {
			return Package{}, err
		}
		if p.credentials.Password, off, err = readString(data, off, "password"); err != nil {
			return Package{}, err
		}
	}

	p.payload = clone(data[off:])
	return p, nil
}

func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	off += credentialLenSize
	return off + copy(buf[off:], s)
}

func readString(data []byte, off int, field string) (string, int, error) {
	if len(data)-off < credentialLenSize {
		return "", 0, errors.Wrapf(ErrFraming, "missing %s length at offset %d", field, off)
	}
	n := binary.LittleEndian.Uint32(data[off:])
	off += credentialLenSize
	if uint64(n) > uint64(len(data)-off) {
		return "", 0, errors.Wrapf(ErrFraming, "%s length %d exceeds remaining %d bytes", field, n, len(data)-off)
	}
	end := off + int(n)
	return string(data[off:end]), end, nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
