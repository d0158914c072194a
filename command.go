package estcp

import "fmt"

// Command identifies the operation or reply carried by a Package.
type Command uint8

// Commands understood by the event store.
const (
	HeartbeatRequest  Command = 0x01
	HeartbeatResponse Command = 0x02

	Ping Command = 0x03
	Pong Command = 0x04

	PrepareAck Command = 0x05
	CommitAck  Command = 0x06

	SlaveAssignment Command = 0x07
	CloneAssignment Command = 0x08

	SubscribeReplica         Command = 0x10
	ReplicaLogPositionAck    Command = 0x11
	CreateChunk              Command = 0x12
	RawChunkBulk             Command = 0x13
	DataChunkBulk            Command = 0x14
	ReplicaSubscriptionRetry Command = 0x15
	ReplicaSubscribed        Command = 0x16

	WriteEvents                Command = 0x82
	WriteEventsCompleted       Command = 0x83
	TransactionStart           Command = 0x84
	TransactionStartCompleted  Command = 0x85
	TransactionWrite           Command = 0x86
	TransactionWriteCompleted  Command = 0x87
	TransactionCommit          Command = 0x88
	TransactionCommitCompleted Command = 0x89
	DeleteStream               Command = 0x8A
	DeleteStreamCompleted      Command = 0x8B

	ReadEvent                         Command = 0xB0
	ReadEventCompleted                Command = 0xB1
	ReadStreamEventsForward           Command = 0xB2
	ReadStreamEventsForwardCompleted  Command = 0xB3
	ReadStreamEventsBackward          Command = 0xB4
	ReadStreamEventsBackwardCompleted Command = 0xB5
	ReadAllEventsForward              Command = 0xB6
	ReadAllEventsForwardCompleted     Command = 0xB7
	ReadAllEventsBackward             Command = 0xB8
	ReadAllEventsBackwardCompleted    Command = 0xB9

	SubscribeToStream        Command = 0xC0
	SubscriptionConfirmation Command = 0xC1
	StreamEventAppeared      Command = 0xC2
	UnsubscribeFromStream    Command = 0xC3
	SubscriptionDropped      Command = 0xC4

	ConnectToPersistentSubscription           Command = 0xC5
	PersistentSubscriptionConfirmation        Command = 0xC6
	PersistentSubscriptionStreamEventAppeared Command = 0xC7
	CreatePersistentSubscription              Command = 0xC8
	CreatePersistentSubscriptionCompleted     Command = 0xC9
	DeletePersistentSubscription              Command = 0xCA
	DeletePersistentSubscriptionCompleted     Command = 0xCB
	PersistentSubscriptionAckEvents           Command = 0xCC
	PersistentSubscriptionNakEvents           Command = 0xCD
	UpdatePersistentSubscription              Command = 0xCE
	UpdatePersistentSubscriptionCompleted     Command = 0xCF

	ScavengeDatabase          Command = 0xD0
	ScavengeDatabaseCompleted Command = 0xD1

	BadRequest       Command = 0xF0
	NotHandled       Command = 0xF1
	Authenticate     Command = 0xF2
	Authenticated    Command = 0xF3
	NotAuthenticated Command = 0xF4
	IdentifyClient   Command = 0xF5
	ClientIdentified Command = 0xF6
)

var commandNames = map[Command]string{
	HeartbeatRequest:  "HeartbeatRequestCommand",
	HeartbeatResponse: "HeartbeatResponseCommand",

	Ping: "Ping",
	Pong: "Pong",

	PrepareAck: "PrepareAck",
	CommitAck:  "CommitAck",

	SlaveAssignment: "SlaveAssignment",
	CloneAssignment: "CloneAssignment",

	SubscribeReplica:         "SubscribeReplica",
	ReplicaLogPositionAck:    "ReplicaLogPositionAck",
	CreateChunk:              "CreateChunk",
	RawChunkBulk:             "RawChunkBulk",
	DataChunkBulk:            "DataChunkBulk",
	ReplicaSubscriptionRetry: "ReplicaSubscriptionRetry",
	ReplicaSubscribed:        "ReplicaSubscribed",

	WriteEvents:                "WriteEvents",
	WriteEventsCompleted:       "WriteEventsCompleted",
	TransactionStart:           "TransactionStart",
	TransactionStartCompleted:  "TransactionStartCompleted",
	TransactionWrite:           "TransactionWrite",
	TransactionWriteCompleted:  "TransactionWriteCompleted",
	TransactionCommit:          "TransactionCommit",
	TransactionCommitCompleted: "TransactionCommitCompleted",
	DeleteStream:               "DeleteStream",
	DeleteStreamCompleted:      "DeleteStreamCompleted",

	ReadEvent:                         "ReadEvent",
	ReadEventCompleted:                "ReadEventCompleted",
	ReadStreamEventsForward:           "ReadStreamEventsForward",
	ReadStreamEventsForwardCompleted:  "ReadStreamEventsForwardCompleted",
	ReadStreamEventsBackward:          "ReadStreamEventsBackward",
	ReadStreamEventsBackwardCompleted: "ReadStreamEventsBackwardCompleted",
	ReadAllEventsForward:              "ReadAllEventsForward",
	ReadAllEventsForwardCompleted:     "ReadAllEventsForwardCompleted",
	ReadAllEventsBackward:             "ReadAllEventsBackward",
	ReadAllEventsBackwardCompleted:    "ReadAllEventsBackwardCompleted",

	SubscribeToStream:        "SubscribeToStream",
	SubscriptionConfirmation: "SubscriptionConfirmation",
	StreamEventAppeared:      "StreamEventAppeared",
	UnsubscribeFromStream:    "UnsubscribeFromStream",
	SubscriptionDropped:      "SubscriptionDropped",

	ConnectToPersistentSubscription:           "ConnectToPersistentSubscription",
	PersistentSubscriptionConfirmation:        "PersistentSubscriptionConfirmation",
	PersistentSubscriptionStreamEventAppeared: "PersistentSubscriptionStreamEventAppeared",
	CreatePersistentSubscription:              "CreatePersistentSubscription",
	CreatePersistentSubscriptionCompleted:     "CreatePersistentSubscriptionCompleted",
	DeletePersistentSubscription:              "DeletePersistentSubscription",
	DeletePersistentSubscriptionCompleted:     "DeletePersistentSubscriptionCompleted",
	PersistentSubscriptionAckEvents:           "PersistentSubscriptionAckEvents",
	PersistentSubscriptionNakEvents:           "PersistentSubscriptionNakEvents",
	UpdatePersistentSubscription:              "UpdatePersistentSubscription",
	UpdatePersistentSubscriptionCompleted:     "UpdatePersistentSubscriptionCompleted",

	ScavengeDatabase:          "ScavengeDatabase",
	ScavengeDatabaseCompleted: "ScavengeDatabaseCompleted",

	BadRequest:       "BadRequest",
	NotHandled:       "NotHandled",
	Authenticate:     "Authenticate",
	Authenticated:    "Authenticated",
	NotAuthenticated: "NotAuthenticated",
	IdentifyClient:   "IdentifyClient",
	ClientIdentified: "ClientIdentified",
}

// IsKnown reports whether c is part of the command table.
func (c Command) IsKnown() bool {
	_, ok := commandNames[c]
	return ok
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", uint8(c))
}

// Flags is the package flag bit set.
type Flags uint8

const (
	// FlagNone marks a package without credentials.
	FlagNone Flags = 0x00
	// FlagAuthenticated marks a package carrying a login and password.
	FlagAuthenticated Flags = 0x01
	// FlagTrustedWrite marks a write issued by a trusted internal client.
	FlagTrustedWrite Flags = 0x02
)

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}
