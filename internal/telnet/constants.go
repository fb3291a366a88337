package telnet

import "strconv"

const (
	// RFC 885
	EOR = 239 + iota // ef
	// RFC 854
	SE   // f0
	NOP  // f1
	DM   // f2
	BRK  // f3
	IP   // f4
	AO   // f5
	AYT  // f6
	EC   // f7
	EL   // f8
	GA   // f9
	SB   // fa
	WILL // fb
	WONT // fc
	DO   // fd
	DONT // fe
	IAC  // ff
)

const (
	TransmitBinary  = 0  // RFC 856
	Echo            = 1  // RFC 857
	SuppressGoAhead = 3  // RFC 858
	Status          = 5  // RFC 859
	TimingMark      = 6  // RFC 860
	TerminalType    = 24 // RFC 930
	EndOfRecord     = 25 // RFC 885
	NAWS            = 31 // RFC 1073
	Linemode        = 34 // RFC 1184
	NewEnviron      = 39 // RFC 1572
	Charset         = 42 // RFC 2066
	MSDP            = 69
	MCCP2           = 86
)

const (
	CharsetRequest = 1 + iota
	CharsetAccepted
	CharsetRejected
	CharsetTTableIs
	CharsetTTableRejected
	CharsetTTableAck
	CharsetTTableNak
)

var commandNames = map[byte]string{
	EOR:  "EOR",
	SE:   "SE",
	NOP:  "NOP",
	DM:   "DM",
	BRK:  "BRK",
	IP:   "IP",
	AO:   "AO",
	AYT:  "AYT",
	EC:   "EC",
	EL:   "EL",
	GA:   "GA",
	SB:   "SB",
	WILL: "WILL",
	WONT: "WONT",
	DO:   "DO",
	DONT: "DONT",
	IAC:  "IAC",
}

var optionNames = map[byte]string{
	TransmitBinary:  "TRANSMIT-BINARY",
	Echo:            "ECHO",
	SuppressGoAhead: "SUPPRESS-GO-AHEAD",
	Status:          "STATUS",
	TimingMark:      "TIMING-MARK",
	TerminalType:    "TERMINAL-TYPE",
	EndOfRecord:     "END-OF-RECORD",
	NAWS:            "NAWS",
	Linemode:        "LINEMODE",
	NewEnviron:      "NEW-ENVIRON",
	Charset:         "CHARSET",
	MSDP:            "MSDP",
	MCCP2:           "MCCP2",
}

// CommandName returns the mnemonic for a command byte, or its decimal value.
func CommandName(b byte) string {
	if name, ok := commandNames[b]; ok {
		return name
	}
	return strconv.Itoa(int(b))
}

// OptionName returns the conventional name of an option code, or its
// decimal value.
func OptionName(opt byte) string {
	if name, ok := optionNames[opt]; ok {
		return name
	}
	return strconv.Itoa(int(opt))
}
