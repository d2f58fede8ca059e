package geo

import "math"

// Feature is a polygon with its attribute values.
type Feature struct {
	Polygon *Polygon
	Attrs   map[string]string
}

// Index is a uniform-grid spatial index over feature bounding boxes. Lookups
// touch only the features whose boxes overlap the query cell, which keeps
// bulk point-in-polygon work over whole layers cheap.
type Index struct {
	cell     float64
	cells    map[[2]int64][]int
	features []Feature
}

// NewIndex buckets features into a grid. A non-positive cellSize picks one
// from the average feature extent.
func NewIndex(features []Feature, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = averageExtent(features)
	}
	ix := &Index{
		cell:     cellSize,
		cells:    make(map[[2]int64][]int),
		features: features,
	}
	for i, f := range features {
		if f.Polygon.IsEmpty() {
			continue
		}
		b := f.Polygon.Box
		x0, y0 := ix.cellOf(b.XMin, b.YMin)
		x1, y1 := ix.cellOf(b.XMax, b.YMax)
		for cx := x0; cx <= x1; cx++ {
			for cy := y0; cy <= y1; cy++ {
				key := [2]int64{cx, cy}
				ix.cells[key] = append(ix.cells[key], i)
			}
		}
	}
	return ix
}

// Len returns the number of indexed features.
func (ix *Index) Len() int {
	return len(ix.features)
}

// Lookup returns the first feature containing (x, y).
func (ix *Index) Lookup(x, y float64) (Feature, bool) {
	for _, i := range ix.cells[ix.key(x, y)] {
		f := ix.features[i]
		if f.Polygon.Contains(x, y) {
			return f, true
		}
	}
	return Feature{}, false
}

// LookupAll returns every feature containing (x, y).
func (ix *Index) LookupAll(x, y float64) []Feature {
	var out []Feature
	for _, i := range ix.cells[ix.key(x, y)] {
		f := ix.features[i]
		if f.Polygon.Contains(x, y) {
			out = append(out, f)
		}
	}
	return out
}

func (ix *Index) key(x, y float64) [2]int64 {
	cx, cy := ix.cellOf(x, y)
	return [2]int64{cx, cy}
}

func (ix *Index) cellOf(x, y float64) (int64, int64) {
	return int64(math.Floor(x / ix.cell)), int64(math.Floor(y / ix.cell))
}

func averageExtent(features []Feature) float64 {
	var sum float64
	var n int
	for _, f := range features {
		if f.Polygon.IsEmpty() {
			continue
		}
		b := f.Polygon.Box
		sum += math.Max(b.XMax-b.XMin, b.YMax-b.YMin)
		n++
	}
	if n == 0 || sum == 0 {
		return 1
	}
	return sum / float64(n)
}
