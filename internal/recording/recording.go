// Package recording holds the in-memory representation of a multi-channel
// physiological recording and its loaders.
package recording

import (
	"fmt"
	"strings"
	"time"
)

// Role tags what kind of signal a channel carries.
type Role string

const (
	RoleEEG Role = "eeg"
	RoleEOG Role = "eog"
	RoleEMG Role = "emg"
	RoleECG Role = "ecg"
	RoleHR  Role = "hr"
	RoleACC Role = "acc"
)

var roleOrder = []Role{RoleEEG, RoleEOG, RoleEMG, RoleECG, RoleHR, RoleACC}

// Roles returns every known role in canonical order.
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// ParseRole converts a case-insensitive role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown channel role %q (expected one of %s)", s, roleList())
	}
	return r, nil
}

func (r Role) Valid() bool {
	for _, known := range roleOrder {
		if r == known {
			return true
		}
	}
	return false
}

// Index is the position of the role in canonical order, or -1.
func (r Role) Index() int {
	for i, known := range roleOrder {
		if r == known {
			return i
		}
	}
	return -1
}

// Electrophysiological reports whether the channel is recorded in volts and
// goes through band-pass filtering and microvolt rescaling.
func (r Role) Electrophysiological() bool {
	switch r {
	case RoleEEG, RoleEOG, RoleEMG, RoleECG:
		return true
	}
	return false
}

// Spectral reports whether relative band powers are computed for the role.
func (r Role) Spectral() bool {
	return r == RoleEEG || r == RoleEOG
}

func roleList() string {
	names := make([]string, len(roleOrder))
	for i, r := range roleOrder {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// Channel is one named signal. Voltage channels hold volts; other
// channels hold values in Dimension.
type Channel struct {
	Label     string
	Dimension string
	Samples   []float64
}

// Recording is a set of channels sharing one sampling rate.
type Recording struct {
	SamplingRate float64
	Start        time.Time
	Channels     []Channel
}

// Channel looks up a channel by label.
func (r *Recording) Channel(label string) (*Channel, bool) {
	for i := range r.Channels {
		if r.Channels[i].Label == label {
			return &r.Channels[i], true
		}
	}
	return nil, false
}

// Labels lists channel labels in file order.
func (r *Recording) Labels() []string {
	labels := make([]string, len(r.Channels))
	for i, ch := range r.Channels {
		labels[i] = ch.Label
	}
	return labels
}

// Samples is the length of the shortest channel.
func (r *Recording) Samples() int {
	if len(r.Channels) == 0 {
		return 0
	}
	n := len(r.Channels[0].Samples)
	for _, ch := range r.Channels[1:] {
		n = min(n, len(ch.Samples))
	}
	return n
}

// Duration is the time covered by the shortest channel.
func (r *Recording) Duration() time.Duration {
	if r.SamplingRate <= 0 {
		return 0
	}
	return time.Duration(float64(r.Samples()) / r.SamplingRate * float64(time.Second))
}
