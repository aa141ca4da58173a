package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// From here: https://su2code.github.io/docs_v7/Mesh-File/
var su2ElementType = map[int]ElementType{
	3:  Line,
	5:  Triangle,
	9:  Quad,
	10: Tet,
	12: Hex,
	13: Prism,
	14: Pyramid,
}

type su2Reader struct {
	scanner *bufio.Scanner
	line    int
}

// next returns the next line that is neither blank nor a % comment, io.EOF
// at the end of the file
func (r *su2Reader) next() (string, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// data is next inside a section, where the file may not end
func (r *su2Reader) data() (string, error) {
	line, err := r.next()
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("unexpected end of file after line %d", r.line)
	}
	return line, err
}

// token splits a "KEY= value" line
func token(line string) (key, value string, ok bool) {
	ind := strings.Index(line, "=")
	if ind < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:ind]), strings.TrimSpace(line[ind+1:]), true
}

func (r *su2Reader) number(want string) (int, error) {
	line, err := r.data()
	if err != nil {
		return 0, err
	}
	key, value, ok := token(line)
	if !ok || key != want {
		return 0, fmt.Errorf("line %d: expected %s=, got [%s]", r.line, want, line)
	}
	return count(value)
}

func count(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing count")
	}
	return strconv.Atoi(fields[0])
}

// element reads "type v0 v1 ... [index]"
func (r *su2Reader) element() (ElementType, []int, error) {
	line, err := r.data()
	if err != nil {
		return 0, nil, err
	}
	parts := strings.Fields(line)
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	etype, ok := su2ElementType[code]
	if !ok {
		return 0, nil, fmt.Errorf("line %d: unsupported SU2 element type %d", r.line, code)
	}
	nv := gmshNumNodes[etype]
	if len(parts) < 1+nv {
		return 0, nil, fmt.Errorf("line %d: element type %d needs %d vertices", r.line, code, nv)
	}
	verts := make([]int, nv)
	for i := range verts {
		if verts[i], err = strconv.Atoi(parts[1+i]); err != nil {
			return 0, nil, fmt.Errorf("line %d: %w", r.line, err)
		}
	}
	return etype, verts, nil
}

// ReadSU2 reads a native SU2 mesh. The zero based position of each marker
// becomes the boundary id of its faces, and markers holds the marker names in
// that order. SU2 carries no materials, every cell gets material id 0.
func ReadSU2(filename string) (msh *Mesh, markers []string, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var (
		r     = &su2Reader{scanner: bufio.NewScanner(file)}
		dim   int
		cells [][]int
		types []ElementType
	)
	msh = NewMesh()
	for {
		var line string
		if line, err = r.next(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, nil, err
		}
		key, value, ok := token(line)
		if !ok {
			return nil, nil, fmt.Errorf("line %d: badly formed input line [%s], should have an =", r.line, line)
		}
		n, err := count(value)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %s: %w", r.line, key, err)
		}
		switch key {
		case "NDIME":
			if dim = n; dim != 2 && dim != 3 {
				return nil, nil, fmt.Errorf("unsupported SU2 dimension %d", dim)
			}
		case "NELEM":
			for k := 0; k < n; k++ {
				etype, verts, err := r.element()
				if err != nil {
					return nil, nil, err
				}
				if etype.Dimension() != dim {
					return nil, nil, fmt.Errorf("line %d: %s element in a %dD mesh", r.line, etype, dim)
				}
				types, cells = append(types, etype), append(cells, verts)
			}
		case "NPOIN":
			msh.Vertices = make([]r3.Vec, n)
			for i := range msh.Vertices {
				line, err := r.data()
				if err != nil {
					return nil, nil, err
				}
				parts := strings.Fields(line)
				if len(parts) < dim {
					return nil, nil, fmt.Errorf("line %d: unable to read coordinates", r.line)
				}
				var x [3]float64
				for j := 0; j < dim; j++ {
					if x[j], err = strconv.ParseFloat(parts[j], 64); err != nil {
						return nil, nil, fmt.Errorf("line %d: %w", r.line, err)
					}
				}
				msh.Vertices[i] = r3.Vec{X: x[0], Y: x[1], Z: x[2]}
			}
		case "NMARK":
			for m := 0; m < n; m++ {
				line, err := r.data()
				if err != nil {
					return nil, nil, err
				}
				key, label, ok := token(line)
				if !ok || key != "MARKER_TAG" {
					return nil, nil, fmt.Errorf("line %d: expected MARKER_TAG=, got [%s]", r.line, line)
				}
				markers = append(markers, label)
				nElems, err := r.number("MARKER_ELEMS")
				if err != nil {
					return nil, nil, err
				}
				for i := 0; i < nElems; i++ {
					etype, verts, err := r.element()
					if err != nil {
						return nil, nil, err
					}
					if etype.Dimension() != dim-1 {
						return nil, nil, fmt.Errorf("line %d: marker %s holds a %s element", r.line, label, etype)
					}
					msh.BoundaryTags[FaceKey(verts)] = m
				}
			}
		default:
			return nil, nil, fmt.Errorf("line %d: unknown SU2 keyword %s", r.line, key)
		}
	}
	if len(cells) == 0 {
		return nil, nil, fmt.Errorf("%s: no cells", filename)
	}
	for k, verts := range cells {
		for _, v := range verts {
			if v < 0 || v >= len(msh.Vertices) {
				return nil, nil, fmt.Errorf("cell %d references unknown vertex %d", k, v)
			}
		}
		msh.AddCell(types[k].CellType(), verts, ElementFaces(types[k], verts), 0)
	}
	if err = msh.BuildConnectivity(); err != nil {
		return nil, nil, err
	}
	if err = msh.Validate(); err != nil {
		return nil, nil, err
	}
	return msh, markers, nil
}
