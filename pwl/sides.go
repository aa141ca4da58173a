package pwl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gopwld/mesh"
)

// degenerateTol is the smallest simplex measure accepted, relative to the
// longest simplex edge raised to the simplex dimension.
const degenerateTol = 1.e-12

// sideKey identifies the side (or, for polyhedra, the side facet) on which a
// face quadrature point lies, independently of which of the two cells sharing
// the face is asking.
type sideKey struct {
	face string // FaceKey of the face, empty for slabs
	edge [2]int // sorted edge vertex ids for polyhedra, {-1,-1} otherwise
}

var slabKey = sideKey{edge: [2]int{-1, -1}}

// side is one simplex of the cell decomposition. Every cell shape function is
// linear on a side: b_i = sum_p weights[p][i] * t_p, with t_p the barycentric
// coordinates of the side points.
type side struct {
	face    int // cell face the side rests on, -1 for slabs
	key     sideKey
	points  []r3.Vec    // dim+1 points, the cell centroid last for polygons and polyhedra
	weights [][]float64 // [point][node]
	measure float64
	bary    []r3.Vec // gradient of each barycentric coordinate
	grads   []r3.Vec // [node] gradient of each shape function
}

// simplexGeometry returns the measure of the simplex spanned by points and the
// gradients of its barycentric coordinates within its affine hull. ok is false
// for a degenerate simplex.
func simplexGeometry(points []r3.Vec) (measure float64, bary []r3.Vec, ok bool) {
	d := len(points) - 1
	if d == 0 {
		return 1, []r3.Vec{{}}, true
	}
	var (
		E     = mat.NewDense(d, 3, nil)
		scale float64
	)
	for m := 1; m <= d; m++ {
		e := r3.Sub(points[m], points[0])
		E.SetRow(m-1, []float64{e.X, e.Y, e.Z})
		scale = math.Max(scale, r3.Norm(e))
	}
	// Metric tensor of the edge vectors
	var G mat.Dense
	G.Mul(E, E.T())
	det := mat.Det(&G)
	if det <= 0 {
		return 0, nil, false
	}
	measure = math.Sqrt(det)
	for k := 2; k <= d; k++ {
		measure /= float64(k)
	}
	if measure <= degenerateTol*math.Pow(scale, float64(d)) {
		return 0, nil, false
	}
	var Ginv, B mat.Dense
	if err := Ginv.Inverse(&G); err != nil {
		return 0, nil, false
	}
	B.Mul(&Ginv, E)
	bary = make([]r3.Vec, d+1)
	for k := 1; k <= d; k++ {
		bary[k] = r3.Vec{X: B.At(k-1, 0), Y: B.At(k-1, 1), Z: B.At(k-1, 2)}
		bary[0] = r3.Sub(bary[0], bary[k])
	}
	return measure, bary, true
}

func unitWeights(N, node int) []float64 {
	w := make([]float64, N)
	w[node] = 1
	return w
}

func averageWeights(N int, nodes []int) []float64 {
	w := make([]float64, N)
	for _, n := range nodes {
		w[n] = 1. / float64(len(nodes))
	}
	return w
}

func average(verts []r3.Vec, ids []int) (ctr r3.Vec) {
	for _, v := range ids {
		ctr = r3.Add(ctr, verts[v])
	}
	return r3.Scale(1./float64(len(ids)), ctr)
}

// buildSides decomposes a cell into simplices: the cell itself for a slab,
// one triangle per edge for a polygon and one tetrahedron per face edge for a
// polyhedron.
func buildSides(c *mesh.Cell, verts []r3.Vec) ([]side, error) {
	var (
		N      = c.NumNodes()
		nodeOf = make(map[int]int, N)
		sides  []side
	)
	for i, v := range c.VertexIDs {
		nodeOf[v] = i
	}
	nodesOf := func(ids []int) ([]int, error) {
		nodes := make([]int, len(ids))
		for i, v := range ids {
			n, ok := nodeOf[v]
			if !ok {
				return nil, fmt.Errorf("face vertex %d is not a vertex of cell %d", v, c.GlobalID)
			}
			nodes[i] = n
		}
		return nodes, nil
	}
	all := make([]int, N)
	for i := range all {
		all[i] = i
	}
	switch c.Type {
	case mesh.Slab:
		if N != 2 {
			return nil, fmt.Errorf("slab cell %d has %d vertices", c.GlobalID, N)
		}
		sides = append(sides, side{
			face:    -1,
			key:     slabKey,
			points:  []r3.Vec{verts[c.VertexIDs[0]], verts[c.VertexIDs[1]]},
			weights: [][]float64{unitWeights(N, 0), unitWeights(N, 1)},
		})
	case mesh.Polygon:
		xc := average(verts, c.VertexIDs)
		for f, face := range c.Faces {
			nodes, err := nodesOf(face.VertexIDs)
			if err != nil {
				return nil, err
			}
			if len(nodes) != 2 {
				return nil, fmt.Errorf("polygon cell %d face %d has %d vertices", c.GlobalID, f, len(nodes))
			}
			sides = append(sides, side{
				face:    f,
				key:     sideKey{face: mesh.FaceKey(face.VertexIDs), edge: [2]int{-1, -1}},
				points:  []r3.Vec{verts[face.VertexIDs[0]], verts[face.VertexIDs[1]], xc},
				weights: [][]float64{unitWeights(N, nodes[0]), unitWeights(N, nodes[1]), averageWeights(N, all)},
			})
		}
	case mesh.Polyhedron:
		xc := average(verts, c.VertexIDs)
		for f, face := range c.Faces {
			nodes, err := nodesOf(face.VertexIDs)
			if err != nil {
				return nil, err
			}
			Nf := len(nodes)
			if Nf < 3 {
				return nil, fmt.Errorf("polyhedron cell %d face %d has %d vertices", c.GlobalID, f, Nf)
			}
			var (
				xf  = average(verts, face.VertexIDs)
				wf  = averageWeights(N, nodes)
				key = mesh.FaceKey(face.VertexIDs)
			)
			for e := 0; e < Nf; e++ {
				a, b := face.VertexIDs[e], face.VertexIDs[(e+1)%Nf]
				sides = append(sides, side{
					face:    f,
					key:     sideKey{face: key, edge: [2]int{min(a, b), max(a, b)}},
					points:  []r3.Vec{verts[a], verts[b], xf, xc},
					weights: [][]float64{unitWeights(N, nodes[e]), unitWeights(N, nodes[(e+1)%Nf]), wf, averageWeights(N, all)},
				})
			}
		}
	default:
		return nil, fmt.Errorf("cell %d has unknown type %v", c.GlobalID, c.Type)
	}
	for s := range sides {
		sd := &sides[s]
		var ok bool
		if sd.measure, sd.bary, ok = simplexGeometry(sd.points); !ok {
			return nil, fmt.Errorf("%w: cell %d side %d", ErrDegenerateCell, c.GlobalID, s)
		}
		sd.grads = make([]r3.Vec, N)
		for p, w := range sd.weights {
			for i := range sd.grads {
				if w[i] != 0 {
					sd.grads[i] = r3.Add(sd.grads[i], r3.Scale(w[i], sd.bary[p]))
				}
			}
		}
	}
	if err := checkStarShaped(c, sides); err != nil {
		return nil, err
	}
	return sides, nil
}

// orientFaces returns a sign per face such that the signed faces bound the
// cell consistently: two faces sharing a ridge (a vertex of a polygon edge,
// an edge of a polyhedron face) traverse it in opposite directions. ok is false
// when the faces admit no such orientation.
func orientFaces(c *mesh.Cell) (orient []float64, ok bool) {
	type use struct {
		face int
		sign float64
	}
	ridges := make(map[[2]int][]use)
	for f, face := range c.Faces {
		vs := face.VertexIDs
		if c.Type == mesh.Polygon {
			ridges[[2]int{vs[0], -1}] = append(ridges[[2]int{vs[0], -1}], use{f, -1})
			ridges[[2]int{vs[1], -1}] = append(ridges[[2]int{vs[1], -1}], use{f, 1})
			continue
		}
		for e := range vs {
			a, b := vs[e], vs[(e+1)%len(vs)]
			sign := 1.
			if a > b {
				sign = -1
			}
			key := [2]int{min(a, b), max(a, b)}
			ridges[key] = append(ridges[key], use{f, sign})
		}
	}
	orient = make([]float64, len(c.Faces))
	for start := range orient {
		if orient[start] != 0 {
			continue
		}
		orient[start] = 1
		queue := []int{start}
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			for _, us := range ridges {
				var mine float64
				for _, u := range us {
					if u.face == f {
						mine = u.sign
					}
				}
				if mine == 0 {
					continue
				}
				for _, u := range us {
					if u.face == f {
						continue
					}
					want := -orient[f] * mine * u.sign
					switch orient[u.face] {
					case 0:
						orient[u.face] = want
						queue = append(queue, u.face)
					case want:
					default:
						return nil, false
					}
				}
			}
		}
	}
	return orient, true
}

// checkStarShaped rejects cells that are not star-shaped about their vertex
// centroid. The sides of such a cell overlap, so their signed measures, taken
// with consistently oriented faces, no longer all share one sign.
func checkStarShaped(c *mesh.Cell, sides []side) error {
	if c.Type == mesh.Slab {
		return nil
	}
	orient, ok := orientFaces(c)
	if !ok {
		return fmt.Errorf("%w: cell %d faces cannot be oriented consistently", ErrDegenerateCell, c.GlobalID)
	}
	signed := make([]float64, len(sides))
	if c.Type == mesh.Polygon {
		var normal r3.Vec
		for _, sd := range sides {
			xc := sd.points[2]
			n := r3.Cross(r3.Sub(sd.points[0], xc), r3.Sub(sd.points[1], xc))
			normal = r3.Add(normal, r3.Scale(orient[sd.face], n))
		}
		if r3.Norm(normal) == 0 {
			return fmt.Errorf("%w: cell %d has no net area", ErrDegenerateCell, c.GlobalID)
		}
		normal = r3.Unit(normal)
		for s, sd := range sides {
			xc := sd.points[2]
			n := r3.Cross(r3.Sub(sd.points[0], xc), r3.Sub(sd.points[1], xc))
			signed[s] = orient[sd.face] * r3.Dot(n, normal) / 2
		}
	} else {
		for s, sd := range sides {
			xc := sd.points[3]
			n := r3.Cross(r3.Sub(sd.points[0], xc), r3.Sub(sd.points[1], xc))
			signed[s] = orient[sd.face] * r3.Dot(n, r3.Sub(sd.points[2], xc)) / 6
		}
	}
	var net, total float64
	for _, v := range signed {
		net += v
		total += math.Abs(v)
	}
	if total-math.Abs(net) > 1.e-9*total {
		return fmt.Errorf("%w: cell %d is not star-shaped about its vertex centroid", ErrDegenerateCell, c.GlobalID)
	}
	return nil
}

// shapeAt evaluates every cell shape function at barycentric coordinates
// lambda of the side.
func (sd *side) shapeAt(lambda []float64) []float64 {
	shape := make([]float64, len(sd.grads))
	for p, w := range sd.weights {
		if lambda[p] == 0 {
			continue
		}
		for i := range shape {
			shape[i] += w[i] * lambda[p]
		}
	}
	return shape
}

func (sd *side) positionAt(lambda []float64) (x r3.Vec) {
	for p, pt := range sd.points {
		x = r3.Add(x, r3.Scale(lambda[p], pt))
	}
	return
}

// facet returns the indices of the side points lying on the cell face and the
// index of the excluded point whose barycentric gradient gives the face normal.
func (sd *side) facet(c *mesh.Cell, face int) (onFace []int, excluded int) {
	if c.Type == mesh.Slab {
		// Face f of a slab is one end point
		v := c.Faces[face].VertexIDs[0]
		p := 0
		if v == c.VertexIDs[1] {
			p = 1
		}
		return []int{p}, 1 - p
	}
	d := len(sd.points) - 1
	onFace = make([]int, d)
	for p := range onFace {
		onFace[p] = p
	}
	return onFace, d
}

// outwardNormal is the unit normal of the face opposite to point excluded,
// pointing away from it.
func (sd *side) outwardNormal(excluded int) r3.Vec {
	g := sd.bary[excluded]
	return r3.Scale(-1/r3.Norm(g), g)
}
