package testutils

// Resetter is satisfied by every emulation in this module. Reset returns a
// component to its construction state: seeded data restored, histories
// emptied, scripted rules removed, and internal generators rewound.
type Resetter interface {
	Reset()
}

// ResetAll resets every given component in order. Nil entries are skipped so
// callers can pass optional components without guarding.
func ResetAll(components ...Resetter) {
	for _, c := range components {
		if c == nil {
			continue
		}
		c.Reset()
	}
}
