package core

import "testing"

func TestNormalize_PromotesIPFromMessage(t *testing.T) {
	e := Normalize(Event{Message: "Failed logon from 192.168.1.50 port 3389"})
	if e.IP != "192.168.1.50" {
		t.Errorf("IP = %q, want 192.168.1.50", e.IP)
	}
}

func TestNormalize_KeepsExistingIP(t *testing.T) {
	e := Normalize(Event{IP: "10.0.0.1", Message: "attempt from 192.168.1.50"})
	if e.IP != "10.0.0.1" {
		t.Errorf("IP = %q, existing field should win", e.IP)
	}
}

func TestNormalize_NoIPInMessage(t *testing.T) {
	e := Normalize(Event{Message: "no address here"})
	if e.IP != "" {
		t.Errorf("IP = %q, want empty", e.IP)
	}
}

func TestNormalize_PromotesPowerShellMessageToCommand(t *testing.T) {
	msg := "powershell.exe -enc SQBFAFgA"
	e := Normalize(Event{Message: msg})
	if e.Command != msg {
		t.Errorf("Command = %q, want message promoted", e.Command)
	}
}

func TestNormalize_PowerShellCaseInsensitive(t *testing.T) {
	e := Normalize(Event{Message: "PowerShell -Command Get-Process"})
	if e.Command == "" {
		t.Error("mixed-case powershell message should be promoted")
	}
}

func TestNormalize_KeepsExistingCommand(t *testing.T) {
	e := Normalize(Event{Command: "cmd.exe", Message: "powershell.exe something"})
	if e.Command != "cmd.exe" {
		t.Errorf("Command = %q, existing field should win", e.Command)
	}
}

func TestNormalize_NonPowerShellMessageNotPromoted(t *testing.T) {
	e := Normalize(Event{Message: "service started"})
	if e.Command != "" {
		t.Errorf("Command = %q, want empty", e.Command)
	}
}
