// Package unknowns maps (unknown, component) pairs to offsets inside the
// block of values stored for every node.
package unknowns

import "fmt"

type UnknownType uint8

const (
	Scalar UnknownType = iota
	Vector2
	Vector3
	VectorN
)

func (u UnknownType) String() string {
	return [...]string{"Scalar", "Vector2", "Vector3", "VectorN"}[u]
}

type Unknown struct {
	Type          UnknownType
	NumComponents int
	MapBegin      int // offset of the first component within a node block
}

// Manager is the ordered, append-only list of unknowns attached to every
// node. Once a mapping has been requested the list is frozen.
type Manager struct {
	unknowns []Unknown
	total    int
	frozen   bool
}

func NewManager() *Manager {
	return &Manager{}
}

// AddUnknown registers an unknown and returns its index. VectorN requires the
// number of components.
func (m *Manager) AddUnknown(t UnknownType, n ...int) int {
	if m.frozen {
		panic("unknowns: cannot add an unknown after DOFs have been mapped")
	}
	var nc int
	switch t {
	case Scalar:
		nc = 1
	case Vector2:
		nc = 2
	case Vector3:
		nc = 3
	case VectorN:
		if len(n) != 1 || n[0] < 1 {
			panic(fmt.Sprintf("unknowns: VectorN needs one positive component count, got %v", n))
		}
		nc = n[0]
	default:
		panic(fmt.Sprintf("unknowns: unknown type %d", t))
	}
	m.unknowns = append(m.unknowns, Unknown{Type: t, NumComponents: nc, MapBegin: m.total})
	m.total += nc
	return len(m.unknowns) - 1
}

func (m *Manager) NumUnknowns() int { return len(m.unknowns) }

func (m *Manager) Unknown(u int) Unknown {
	m.checkUnknown(u)
	return m.unknowns[u]
}

func (m *Manager) NumComponents(u int) int {
	m.checkUnknown(u)
	return m.unknowns[u].NumComponents
}

// TotalComponents is the stride of a node block.
func (m *Manager) TotalComponents() int {
	m.frozen = true
	return m.total
}

// MapUnknown returns the offset of component c of unknown u inside a node
// block.
func (m *Manager) MapUnknown(u, c int) int {
	m.checkUnknown(u)
	uk := m.unknowns[u]
	if c < 0 || c >= uk.NumComponents {
		panic(fmt.Sprintf("unknowns: component %d out of range for unknown %d with %d components",
			c, u, uk.NumComponents))
	}
	m.frozen = true
	return uk.MapBegin + c
}

func (m *Manager) checkUnknown(u int) {
	if u < 0 || u >= len(m.unknowns) {
		panic(fmt.Sprintf("unknowns: unknown index %d out of range [0,%d)", u, len(m.unknowns)))
	}
}
