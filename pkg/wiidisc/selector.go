package wiidisc

// PartitionType identifies the well-known partition type values defined
// by the Wii disc format itself (not to be confused with Selector, which
// is the caller's *policy* for which types to keep).
type PartitionType uint32

const (
	PartitionUpdate PartitionType = 0
	PartitionGame   PartitionType = 1
	PartitionOther  PartitionType = 2
)

// Selector chooses which partitions a walk preserves, matching
// original_source's partition_selector_t exactly so its sentinel values
// (deliberately chosen far outside any real partition type) double as
// both named policies and, for any other numeric value, an exact-type
// match.
type Selector uint32

const (
	SelectorUpdate       = Selector(PartitionUpdate)
	SelectorGame         = Selector(PartitionGame)
	SelectorOther        = Selector(PartitionOther)
	SelectorAll          Selector = 0xffffffff - 3
	SelectorRemoveUpdate Selector = 0xffffffff - 2 // keep game + channel installers
	SelectorOnlyGame     Selector = 0xffffffff - 1
)

// Matches reports whether a partition of the given type should be
// preserved under this selector.
func (s Selector) Matches(ptype uint32) bool {
	switch s {
	case SelectorAll:
		return true
	case SelectorRemoveUpdate:
		return ptype != uint32(PartitionUpdate)
	case SelectorOnlyGame:
		return ptype == uint32(PartitionGame)
	default:
		return ptype == uint32(s)
	}
}
