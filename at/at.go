package at

import (
	"fmt"
	"strconv"
)

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	FAIL     = "FAIL"
	Ready    = "ready"
	SendOK   = "SEND OK"
	SendFail = "SEND FAIL"

	// URCs (Unsolicited Result Codes)
	UrcWifiConnected  = "WIFI CONNECTED"
	UrcWifiGotIP      = "WIFI GOT IP"
	UrcWifiDisconnect = "WIFI DISCONNECT"
	UrcConnect        = "CONNECT"
	UrcClosed         = "CLOSED"
	UrcBusy           = "busy "

	// Response prefixes
	IPDPrefix      = "+IPD,"
	StatusPrefix   = "STATUS:"
	StationIP      = "STAIP"
	SntpTimePrefix = "+CIPSNTPTIME:"
	HTTPVersion    = "HTTP/1.1"
	HTTPStatusOK   = "200 OK"

	// Commands
	CmdRestore     = "AT+RESTORE"
	CmdEchoOff     = "ATE0"
	CmdStationMode = "AT+CWMODE=1"
	CmdStatus      = "AT+CIPSTATUS"
	CmdLocalIP     = "AT+CIFSR"
	CmdClose       = "AT+CIPCLOSE"
	CmdSntpTime    = "AT+CIPSNTPTIME?"
)

// StatusNoAP is the AT+CIPSTATUS code reported when the station is not
// associated with an access point.
const StatusNoAP = 5

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR, SEND OK
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (STATUS:2, +CIFSR:...)
	TypePrompt                     // CIPSEND input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// JoinAP builds the command joining the access point ssid.
func JoinAP(ssid, password string) string {
	return fmt.Sprintf(`AT+CWJAP="%s","%s"`, ssid, password)
}

// StartTCP builds the command opening a single TCP connection.
func StartTCP(host string, port int) string {
	return fmt.Sprintf(`AT+CIPSTART="TCP","%s",%d`, host, port)
}

// SendLength builds the command announcing an n byte payload.
func SendLength(n int) string {
	return "AT+CIPSEND=" + strconv.Itoa(n)
}

// SntpConfig builds the command enabling SNTP with the given timezone offset
// in hours.
func SntpConfig(timezone int, server string) string {
	return fmt.Sprintf(`AT+CIPSNTPCFG=1,%d,"%s"`, timezone, server)
}
