package core

import (
	"regexp"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)

// Normalize returns an enriched copy of the event. If the IP field is
// empty, the first IPv4-shaped dotted quad found in the message is
// promoted into it. If the command field is empty and the message
// mentions PowerShell, the message is promoted into the command so the
// script detectors see it. Absence of matches is not an error.
func Normalize(e Event) Event {
	if e.IP == "" {
		if m := ipv4Pattern.FindString(e.Message); m != "" {
			e.IP = m
		}
	}
	if e.Command == "" && strings.Contains(strings.ToLower(e.Message), "powershell") {
		e.Command = e.Message
	}
	return e
}
