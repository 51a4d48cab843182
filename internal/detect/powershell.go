package detect

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

const PowerShellName = "powershell_abuse"

const (
	// scriptBlockEventID is PowerShell script block logging.
	scriptBlockEventID = 4104
	// processCreateEventID is process creation, the fallback source for
	// PowerShell command lines when script block logging is disabled.
	processCreateEventID = 4688
)

// suspiciousKeywords trip the MEDIUM keyword branch when no encoded
// command is present.
var suspiciousKeywords = []string{
	"iex",
	"invoke-expression",
	"downloadstring",
	"new-object net.webclient",
}

// PowerShell detects encoded-command abuse and download-cradle
// keywords in script block and process creation events. Stateless
// across calls.
type PowerShell struct {
	minBase64Len int
	logger       zerolog.Logger
}

// NewPowerShell creates the detector from validated thresholds.
func NewPowerShell(cfg core.ThresholdsConfig, logger zerolog.Logger) *PowerShell {
	return &PowerShell{
		minBase64Len: cfg.PowerShellMinBase64Len,
		logger:       logger.With().Str("detector", PowerShellName).Logger(),
	}
}

func (d *PowerShell) Name() string { return PowerShellName }

// Detect evaluates each qualifying event. The encoded-command check
// takes priority over the keyword check; a single event yields at most
// one alert.
func (d *PowerShell) Detect(events []core.Event) []*core.Alert {
	var alerts []*core.Alert
	for i := range events {
		e := &events[i]

		cmd := e.Command
		if cmd == "" {
			cmd = e.Message
		}

		switch e.EventID {
		case scriptBlockEventID:
			// Script block logs are PowerShell by definition.
		case processCreateEventID:
			if !strings.Contains(strings.ToLower(cmd), "powershell") {
				continue
			}
		default:
			continue
		}

		if a := d.inspect(cmd, e.User); a != nil {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func (d *PowerShell) inspect(cmd, user string) *core.Alert {
	lower := strings.ToLower(cmd)
	display := user
	if display == "" {
		display = "Unknown"
	}

	if strings.Contains(lower, "-enc") || strings.Contains(lower, "-encodedcommand") {
		fields := strings.Fields(cmd)
		var payload string
		if len(fields) > 0 {
			payload = fields[len(fields)-1]
		}
		if len(payload) >= d.minBase64Len {
			decoded := tryDecodeBase64Unicode(payload)
			return core.NewAlert(
				PowerShellName,
				core.SeverityHigh,
				fmt.Sprintf("[HIGH] Suspicious Encoded PowerShell - %s", display),
				formatPowerShellAlert("encoded", cmd, decoded, user),
			)
		}
		return nil
	}

	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return core.NewAlert(
				PowerShellName,
				core.SeverityMedium,
				fmt.Sprintf("[MEDIUM] Suspicious PowerShell Keywords - %s", display),
				formatPowerShellAlert("keywords", cmd, "", user),
			)
		}
	}
	return nil
}

// tryDecodeBase64Unicode decodes a base64 payload the way PowerShell
// encodes -EncodedCommand arguments: UTF-16LE text. Odd-length output
// cannot be UTF-16, so it falls back to UTF-8 with invalid bytes
// dropped. Returns "" when the payload is not base64 at all; the
// caller simply omits the decoded block.
func tryDecodeBase64Unicode(s string) string {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	if len(raw)%2 == 0 {
		u16 := make([]uint16, 0, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
		}
		return string(utf16.Decode(u16))
	}
	return strings.ToValidUTF8(string(raw), "")
}

// formatPowerShellAlert renders the alert narrative. Command and
// decoded payloads are truncated so one log line cannot flood a
// notification channel.
func formatPowerShellAlert(kind, command, decoded, user string) string {
	var lines []string
	if kind == "encoded" {
		lines = []string{
			"Suspicious Encoded PowerShell Detected",
			"",
		}
		if user != "" {
			lines = append(lines, fmt.Sprintf("User: %s", user))
		}
		lines = append(lines, fmt.Sprintf("Command: %s", truncate(command, 100)))
		if decoded != "" {
			lines = append(lines,
				"",
				"Decoded Content:",
				truncate(decoded, 200),
			)
		}
		lines = append(lines,
			"",
			"Risk Level: High",
			"MITRE ATT&CK: T1059.001 - PowerShell",
			"",
			"Recommended Actions:",
			"- Isolate affected system",
			"- Analyze decoded command for malicious intent",
			"- Check for additional persistence mechanisms",
		)
	} else {
		lines = []string{
			"Suspicious PowerShell Command Detected",
			"",
		}
		if user != "" {
			lines = append(lines, fmt.Sprintf("User: %s", user))
		}
		lines = append(lines,
			fmt.Sprintf("Command: %s", truncate(command, 150)),
			"",
			"Risk Level: Medium",
			"MITRE ATT&CK: T1059.001 - PowerShell",
			"Indicators: IEX, DownloadString, or Web Client detected",
			"",
			"Recommended Actions:",
			"- Review full command context",
			"- Check network connections from this host",
			"- Verify if download occurred",
		)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
