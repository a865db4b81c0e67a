package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// HostPort is an audio port exposed by the host PipeWire graph.
type HostPort struct {
	Name   string `json:"name"`
	Device string `json:"device"`
	Port   string `json:"port"`
	// Output ports produce audio (microphones, application playback).
	Output bool `json:"output"`
}

// ListHostPorts lists PipeWire/JACK ports with pw-link. It fails when
// PipeWire is not installed; callers treat that as "no host ports".
func ListHostPorts(ctx context.Context) ([]HostPort, error) {
	cmd := exec.CommandContext(ctx, "pw-link", "-io")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

// parsePortList parses pw-link -io output. Port names may contain colons
// inside the device name, so the port is split off at the last colon.
func parsePortList(output string) []HostPort {
	var ports []HostPort
	isOutput := true
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Output ports:"):
			isOutput = true
			continue
		case strings.HasPrefix(line, "Input ports:"):
			isOutput = false
			continue
		}
		p := HostPort{Name: line, Output: isOutput}
		if i := strings.LastIndex(line, ":"); i > 0 {
			p.Device = strings.TrimSpace(line[:i])
			p.Port = strings.TrimSpace(line[i+1:])
		} else {
			p.Device = line
		}
		ports = append(ports, p)
	}
	return ports
}

// findDuplicates returns every port named exactly name.
func findDuplicates(name string, ports []HostPort) []HostPort {
	var dups []HostPort
	for _, p := range ports {
		if p.Name == name {
			dups = append(dups, p)
		}
	}
	return dups
}

// ValidateHostPort checks that name exists exactly once in ports.
func ValidateHostPort(name string, ports []HostPort) error {
	if name == "" || name == "disabled" {
		return nil
	}
	switch dups := findDuplicates(name, ports); len(dups) {
	case 0:
		return fmt.Errorf("port not found: %s", name)
	case 1:
		return nil
	default:
		return fmt.Errorf("duplicate sources detected for '%s': %d ports. Please close conflicting applications", name, len(dups))
	}
}
