package pwl

import (
	"fmt"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/quadrature"
)

type VolumeQP struct {
	Position r3.Vec
	JxW      float64
	Shape    []float64 // [node]
	Grad     []r3.Vec  // [node], constant over the side holding the point
}

type FaceQP struct {
	Position r3.Vec
	JxW      float64
	Normal   r3.Vec // outward unit normal
	Shape    []float64
	Grad     []r3.Vec
	key      sideKey
}

type FaceView struct {
	Neighbor       mesh.Neighbor
	VertexIDs      []int
	Area           float64
	QP             []FaceQP
	IntSShapeShape *mat.Dense // integral over the face of b_i b_j
	IntSShape      []float64  // integral over the face of b_i
	// Coupling holds the neighbor basis at the face quadrature points. It is
	// nil on boundary faces and until neighbor values are precomputed.
	Coupling *Coupling
}

// CellView is the precomputed PWLD data of one local cell. Node i sits on
// vertex VertexIDs[i].
type CellView struct {
	LocalID, GlobalID int
	Type              mesh.CellType
	MaterialID        int
	NumNodes          int
	VertexIDs         []int
	NodeLocations     []r3.Vec
	Volume            float64
	CharLength        float64
	QP                []VolumeQP
	IntVGradGrad      *mat.Dense // integral of grad b_i . grad b_j
	IntVShapeShape    *mat.Dense // integral of b_i b_j
	IntVShape         []float64  // integral of b_i
	Faces             []FaceView
	sideGrads         map[sideKey][]r3.Vec
}

// NodeOfVertex returns the node sitting on vertex id v.
func (cv *CellView) NodeOfVertex(v int) (int, bool) {
	for i, id := range cv.VertexIDs {
		if id == v {
			return i, true
		}
	}
	return -1, false
}

// Centroid is the vertex average.
func (cv *CellView) Centroid() (ctr r3.Vec) {
	for _, x := range cv.NodeLocations {
		ctr = r3.Add(ctr, x)
	}
	return r3.Scale(1./float64(cv.NumNodes), ctr)
}

// charLength is the length scale used by interior penalty terms: the width of
// a slab, 4V/P for a polygon and 6V/A for a polyhedron.
func charLength(t mesh.CellType, volume float64, areas []float64) float64 {
	switch t {
	case mesh.Slab:
		return volume
	case mesh.Polygon:
		return 4 * volume / floats.Sum(areas)
	default:
		return 6 * volume / floats.Sum(areas)
	}
}

func newCellView(c *mesh.Cell, verts []r3.Vec) (*CellView, error) {
	sides, err := buildSides(c, verts)
	if err != nil {
		return nil, err
	}
	var (
		N   = c.NumNodes()
		dim = c.Type.Dimension()
		cv  = &CellView{
			LocalID:        c.LocalID,
			GlobalID:       c.GlobalID,
			Type:           c.Type,
			MaterialID:     c.MaterialID,
			NumNodes:       N,
			VertexIDs:      append([]int(nil), c.VertexIDs...),
			NodeLocations:  make([]r3.Vec, N),
			IntVGradGrad:   mat.NewDense(N, N, nil),
			IntVShapeShape: mat.NewDense(N, N, nil),
			IntVShape:      make([]float64, N),
			Faces:          make([]FaceView, len(c.Faces)),
			sideGrads:      make(map[sideKey][]r3.Vec, len(sides)),
		}
	)
	for i, v := range c.VertexIDs {
		cv.NodeLocations[i] = verts[v]
	}
	volRule, err := quadrature.ForSimplex(dim, QuadratureOrder)
	if err != nil {
		return nil, err
	}
	faceRule, err := quadrature.ForSimplex(dim-1, QuadratureOrder)
	if err != nil {
		return nil, err
	}

	for s := range sides {
		sd := &sides[s]
		cv.Volume += sd.measure
		cv.sideGrads[sd.key] = sd.grads
		for q, lambda := range volRule.Lambda {
			qp := VolumeQP{
				Position: sd.positionAt(lambda),
				JxW:      volRule.Weights[q] * sd.measure,
				Shape:    sd.shapeAt(lambda),
				Grad:     sd.grads,
			}
			for i := 0; i < N; i++ {
				cv.IntVShape[i] += qp.JxW * qp.Shape[i]
				for j := 0; j < N; j++ {
					cv.IntVShapeShape.Set(i, j, cv.IntVShapeShape.At(i, j)+qp.JxW*qp.Shape[i]*qp.Shape[j])
					cv.IntVGradGrad.Set(i, j, cv.IntVGradGrad.At(i, j)+qp.JxW*r3.Dot(qp.Grad[i], qp.Grad[j]))
				}
			}
			cv.QP = append(cv.QP, qp)
		}
	}

	areas := make([]float64, len(c.Faces))
	for f := range c.Faces {
		fv := &cv.Faces[f]
		fv.Neighbor = c.Faces[f].Neighbor
		fv.VertexIDs = append([]int(nil), c.Faces[f].VertexIDs...)
		fv.IntSShapeShape = mat.NewDense(N, N, nil)
		fv.IntSShape = make([]float64, N)
		for s := range sides {
			sd := &sides[s]
			if c.Type != mesh.Slab && sd.face != f {
				continue
			}
			onFace, excluded := sd.facet(c, f)
			facetPoints := make([]r3.Vec, len(onFace))
			for m, p := range onFace {
				facetPoints[m] = sd.points[p]
			}
			facetMeasure, _, ok := simplexGeometry(facetPoints)
			if !ok {
				return nil, fmt.Errorf("%w: cell %d face %d", ErrDegenerateCell, c.GlobalID, f)
			}
			normal := sd.outwardNormal(excluded)
			for q, facetLambda := range faceRule.Lambda {
				lambda := make([]float64, len(sd.points))
				for m, p := range onFace {
					lambda[p] = facetLambda[m]
				}
				qp := FaceQP{
					Position: sd.positionAt(lambda),
					JxW:      faceRule.Weights[q] * facetMeasure,
					Normal:   normal,
					Shape:    sd.shapeAt(lambda),
					Grad:     sd.grads,
					key:      sd.key,
				}
				fv.Area += qp.JxW
				for i := 0; i < N; i++ {
					fv.IntSShape[i] += qp.JxW * qp.Shape[i]
					for j := 0; j < N; j++ {
						fv.IntSShapeShape.Set(i, j, fv.IntSShapeShape.At(i, j)+qp.JxW*qp.Shape[i]*qp.Shape[j])
					}
				}
				fv.QP = append(fv.QP, qp)
			}
		}
		areas[f] = fv.Area
	}
	cv.CharLength = charLength(c.Type, cv.Volume, areas)
	return cv, nil
}

// PreComputeCellSDValues computes the CellView of every local cell. Cells are
// processed in parallel; each view depends only on its own cell, so the result
// does not depend on scheduling.
func (d *Discretization) PreComputeCellSDValues() error {
	if d.current(d.cellVersion) {
		return nil
	}
	d.Invalidate()
	var (
		cells = d.part.LocalCells
		views = make([]*CellView, len(cells))
		errs  = make([]error, len(cells))
	)
	if len(cells) != 0 {
		parallel.Range(0, len(cells), 0, func(low, high int) {
			for i := low; i < high; i++ {
				views[i], errs[i] = newCellView(&cells[i], d.part.Vertices)
			}
		})
	}
	for _, err := range errs {
		if err != nil {
			d.cellViews = nil
			return err
		}
	}
	d.cellViews = views
	d.neighborViews = nil
	d.cellVersion = d.part.Version
	return nil
}

// CellView returns the precomputed view of local cell id.
func (d *Discretization) CellView(id int) (*CellView, error) {
	if !d.current(d.cellVersion) {
		return nil, ErrNotComputed
	}
	if id < 0 || id >= len(d.cellViews) {
		return nil, fmt.Errorf("local cell %d out of range [0,%d)", id, len(d.cellViews))
	}
	return d.cellViews[id], nil
}

func (d *Discretization) CellViews() ([]*CellView, error) {
	if !d.current(d.cellVersion) {
		return nil, ErrNotComputed
	}
	return d.cellViews, nil
}
