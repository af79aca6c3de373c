package packet

// Command identifies the top-level kind of a message carried by a Packet.
type Command byte

// Command values used by the wire protocol.
const (
	CmdRegistration                   Command = 1
	CmdRedirect                       Command = 3
	CmdGetHash                        Command = 4
	CmdGetTransaction                 Command = 7
	CmdGetVector                      Command = 11
	CmdGetMatrix                      Command = 13
	CmdRegistrationConnectionRefused  Command = 25
	CmdGetBlockCandidate              Command = 29
	CmdGetFirstTransaction            Command = 30
)

// Subcommand refines a Command, or stands alone on bare broadcast/direct
// sends that need no further disambiguation.
type Subcommand byte

// Subcommand values used by the wire protocol.
const (
	SubRegistrationLevelNode Subcommand = 1
	SubGetBlock              Subcommand = 3
	SubEmpty                 Subcommand = 5
	SubSGetIpTable           Subcommand = 12
)

func (c Command) String() string {
	switch c {
	case CmdRegistration:
		return "Registration"
	case CmdRedirect:
		return "Redirect"
	case CmdGetHash:
		return "GetHash"
	case CmdGetTransaction:
		return "GetTransaction"
	case CmdGetVector:
		return "GetVector"
	case CmdGetMatrix:
		return "GetMatrix"
	case CmdRegistrationConnectionRefused:
		return "RegistrationConnectionRefused"
	case CmdGetBlockCandidate:
		return "GetBlockCandidate"
	case CmdGetFirstTransaction:
		return "GetFirstTransaction"
	default:
		return "Unknown"
	}
}

func (s Subcommand) String() string {
	switch s {
	case SubRegistrationLevelNode:
		return "RegistrationLevelNode"
	case SubGetBlock:
		return "GetBlock"
	case SubEmpty:
		return "Empty"
	case SubSGetIpTable:
		return "SGetIpTable"
	default:
		return "Unknown"
	}
}
