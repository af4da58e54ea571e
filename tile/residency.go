package tile

// Residency is the mapping state of one tile.
//
// Transitions are strictly:
//
//	NotResident -> Loading      producer queued a load
//	Loading     -> Resident     copy completed
//	Resident    -> Evicting     producer queued an eviction
//	Evicting    -> NotResident  unmap completed
//
// The producer writes the first and third; the fence monitor writes the
// second and fourth. Loading and Evicting act as exclusive ownership tokens
// held by an in-flight batch.
type Residency uint32

const (
	// NotResident means no physical memory backs the tile.
	NotResident Residency = iota

	// Resident means the tile is mapped and its data has been copied.
	Resident

	// Evicting means an unmap is in flight.
	Evicting

	// Loading means a map and copy are in flight.
	Loading
)

func (r Residency) String() string {
	switch r {
	case NotResident:
		return "NotResident"
	case Resident:
		return "Resident"
	case Evicting:
		return "Evicting"
	case Loading:
		return "Loading"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether from -> to is a legal residency change.
func CanTransition(from, to Residency) bool {
	switch from {
	case NotResident:
		return to == Loading
	case Loading:
		return to == Resident
	case Resident:
		return to == Evicting
	case Evicting:
		return to == NotResident
	}
	return false
}
