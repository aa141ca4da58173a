package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// gmshElementType22 maps the linear Gmsh 2.2 element codes this reader accepts.
var gmshElementType22 = map[int]ElementType{
	15: Point,
	1:  Line,
	2:  Triangle,
	3:  Quad,
	4:  Tet,
	5:  Hex,
	6:  Prism,
	7:  Pyramid,
}

var gmshNumNodes = map[ElementType]int{
	Point: 1, Line: 2, Triangle: 3, Quad: 4, Tet: 4, Hex: 8, Prism: 6, Pyramid: 5,
}

type gmshElement struct {
	etype ElementType
	tag   int // first tag, the physical group
	nodes []int
}

// ReadGmsh22 reads an ASCII Gmsh MSH 2.2 file. Elements of the highest
// dimension become cells with their physical tag as material id; elements one
// dimension lower register their physical tag as the boundary id of the
// matching face.
func ReadGmsh22(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		scanner   = bufio.NewScanner(file)
		msh       = NewMesh()
		nodeIndex = make(map[int]int)
		elements  []gmshElement
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "$MeshFormat":
			if err := readMeshFormat22(scanner); err != nil {
				return nil, err
			}
		case "$Nodes":
			if err := readNodes22(scanner, msh, nodeIndex); err != nil {
				return nil, err
			}
		case "$Elements":
			if elements, err = readElements22(scanner); err != nil {
				return nil, err
			}
		default:
			// $PhysicalNames, $Periodic and data sections carry nothing we use
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				skipTo(scanner, "$End"+line[1:])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	dim := 0
	for _, e := range elements {
		dim = max(dim, e.etype.Dimension())
	}
	if dim == 0 {
		return nil, fmt.Errorf("%s: no cells of dimension 1 or higher", filename)
	}
	for _, e := range elements {
		verts := make([]int, len(e.nodes))
		for i, id := range e.nodes {
			idx, ok := nodeIndex[id]
			if !ok {
				return nil, fmt.Errorf("element references unknown node %d", id)
			}
			verts[i] = idx
		}
		switch e.etype.Dimension() {
		case dim:
			msh.AddCell(e.etype.CellType(), verts, ElementFaces(e.etype, verts), e.tag)
		case dim - 1:
			msh.BoundaryTags[FaceKey(verts)] = e.tag
		}
	}
	if err := msh.BuildConnectivity(); err != nil {
		return nil, err
	}
	if err := msh.Validate(); err != nil {
		return nil, err
	}
	return msh, nil
}

func skipTo(scanner *bufio.Scanner, endMarker string) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == endMarker {
			return
		}
	}
}

func readMeshFormat22(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in MeshFormat")
	}
	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return fmt.Errorf("invalid MeshFormat line")
	}
	if !strings.HasPrefix(parts[0], "2.") {
		return fmt.Errorf("unsupported Gmsh version %s", parts[0])
	}
	if parts[1] != "0" {
		return fmt.Errorf("binary Gmsh files are not supported")
	}
	skipTo(scanner, "$EndMeshFormat")
	return nil
}

func readNodes22(scanner *bufio.Scanner, msh *Mesh, nodeIndex map[int]int) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Nodes")
	}
	numNodes, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid node count: %w", err)
	}
	msh.Vertices = make([]r3.Vec, 0, numNodes)
	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading nodes")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		nodeID, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid node id %q", parts[0])
		}
		var x [3]float64
		for j := range x {
			if x[j], err = strconv.ParseFloat(parts[1+j], 64); err != nil {
				return fmt.Errorf("node %d: %w", nodeID, err)
			}
		}
		nodeIndex[nodeID] = len(msh.Vertices)
		msh.Vertices = append(msh.Vertices, r3.Vec{X: x[0], Y: x[1], Z: x[2]})
	}
	skipTo(scanner, "$EndNodes")
	return nil
}

func readElements22(scanner *bufio.Scanner) ([]gmshElement, error) {
	if !scanner.Scan() {
		return nil, fmt.Errorf("unexpected EOF in Elements")
	}
	numElements, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("invalid element count: %w", err)
	}
	elements := make([]gmshElement, 0, numElements)
	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("unexpected EOF reading elements")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return nil, fmt.Errorf("invalid element line")
		}
		elemID, _ := strconv.Atoi(parts[0])
		elemType, _ := strconv.Atoi(parts[1])
		numTags, _ := strconv.Atoi(parts[2])
		etype, ok := gmshElementType22[elemType]
		if !ok {
			return nil, fmt.Errorf("element %d: unsupported Gmsh element type %d", elemID, elemType)
		}
		nodeStart := 3 + numTags
		expectedNodes := gmshNumNodes[etype]
		if len(parts) < nodeStart+expectedNodes {
			return nil, fmt.Errorf("element %d: expected %d nodes, got %d",
				elemID, expectedNodes, len(parts)-nodeStart)
		}
		e := gmshElement{etype: etype, nodes: make([]int, expectedNodes)}
		if numTags > 0 {
			e.tag, _ = strconv.Atoi(parts[3])
		}
		for j := range e.nodes {
			e.nodes[j], _ = strconv.Atoi(parts[nodeStart+j])
		}
		elements = append(elements, e)
	}
	skipTo(scanner, "$EndElements")
	return elements, nil
}
