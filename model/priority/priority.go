// Package priority defines the urgency classes execution jobs are tagged with.
package priority

import (
	"fmt"
	"strings"
)

// Priority is an execution urgency class. Lower values are more urgent.
type Priority int

const (
	// Dispute jobs resolve disputes and are the most security critical.
	Dispute Priority = iota
	// Approval jobs are time critical approval checks.
	Approval
	// BackingSystemParas is backing work for system workloads.
	BackingSystemParas
	// Backing is ordinary backing work.
	Backing
)

// Count is the number of priority classes.
const Count = int(Backing) + 1

// All lists priorities from the most to the least urgent.
var All = [Count]Priority{Dispute, Approval, BackingSystemParas, Backing}

var names = [Count]string{"dispute", "approval", "backingSystemParas", "backing"}

// String returns the priority name
func (p Priority) String() string {
	if !p.IsValid() {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return names[p]
}

// IsValid reports whether p is one of the known classes.
func (p Priority) IsValid() bool {
	return p >= Dispute && p <= Backing
}

// MoreUrgent reports whether p is strictly more urgent than other.
func (p Priority) MoreUrgent(other Priority) bool {
	return p < other
}

// Parse converts a case-insensitive priority name.
func Parse(name string) (Priority, error) {
	for i, candidate := range names {
		if strings.EqualFold(candidate, name) {
			return Priority(i), nil
		}
	}
	return Backing, fmt.Errorf("unknown priority: %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority: %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
