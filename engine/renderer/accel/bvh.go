package accel

import (
	"sort"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

const (
	// Number of centroid bins evaluated per axis when scoring splits.
	sahBins = 12

	// Relative cost of visiting an interior node vs intersecting a primitive.
	traversalCost float32 = 0.5
)

// Node is a flattened BVH node. Nodes are stored in depth first order, so the
// left child of an interior node always follows it and only the right child
// index is stored. A node with Count > 0 is a leaf covering
// Order[First:First+Count].
type Node struct {
	Bounds math.AABB
	Right  int32
	First  uint32
	Count  uint32
}

func (n *Node) IsLeaf() bool {
	return n.Count > 0
}

type Stats struct {
	Primitives int
	Nodes      int
	Leaves     int
	MaxDepth   int
}

type BVH struct {
	Nodes []Node
	// Primitive indices in leaf order.
	Order []uint32
	Stats Stats
}

type builder struct {
	bounds  []math.AABB
	centers []math.Vec3
	order   []uint32
	nodes   []Node
	maxLeaf int
	stats   Stats
}

// Build partitions the primitives described by bounds. Splits are scored
// with the surface area heuristic over binned centroids; SAH may stop at
// leaves of up to maxLeafSize primitives and larger sets are always split.
func Build(bounds []math.AABB, maxLeafSize int) *BVH {
	if maxLeafSize < 1 {
		maxLeafSize = 1
	}
	b := &builder{
		bounds:  bounds,
		centers: make([]math.Vec3, len(bounds)),
		order:   make([]uint32, len(bounds)),
		nodes:   make([]Node, 0, 2*len(bounds)),
		maxLeaf: maxLeafSize,
		stats:   Stats{Primitives: len(bounds)},
	}
	for i, bb := range bounds {
		b.centers[i] = bb.Center()
		b.order[i] = uint32(i)
	}

	start := time.Now()
	if len(bounds) > 0 {
		b.partition(0, len(bounds), 0)
	}
	b.stats.Nodes = len(b.nodes)
	core.LogDebug("BVH build time: %s, primitives: %d, nodes: %d, leaves: %d, maxDepth: %d",
		time.Since(start), b.stats.Primitives, b.stats.Nodes, b.stats.Leaves, b.stats.MaxDepth)

	return &BVH{Nodes: b.nodes, Order: b.order, Stats: b.stats}
}

func (b *builder) partition(start, end, depth int) int32 {
	if depth > b.stats.MaxDepth {
		b.stats.MaxDepth = depth
	}

	index := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{})

	nodeBounds := math.EmptyAABB()
	centroidBounds := math.EmptyAABB()
	for _, p := range b.order[start:end] {
		nodeBounds = nodeBounds.Union(b.bounds[p])
		centroidBounds = centroidBounds.Extend(b.centers[p])
	}
	b.nodes[index].Bounds = nodeBounds

	count := end - start
	if count == 1 {
		return b.leaf(index, start, end)
	}

	mid := -1
	axis, splitBin, cost, ok := b.bestSplit(start, end, centroidBounds)
	leafCost := float32(count) * nodeBounds.SurfaceArea()
	if ok && (cost < leafCost || count > b.maxLeaf) {
		mid = start
		for j := start; j < end; j++ {
			if b.bin(b.order[j], axis, centroidBounds) <= splitBin {
				b.order[mid], b.order[j] = b.order[j], b.order[mid]
				mid++
			}
		}
	} else if count <= b.maxLeaf {
		return b.leaf(index, start, end)
	}

	// Degenerate centroids or a one sided partition: fall back to a median split.
	if mid <= start || mid >= end {
		axis = centroidBounds.LargestAxis()
		work := b.order[start:end]
		sort.Slice(work, func(i, j int) bool {
			return b.centers[work[i]][axis] < b.centers[work[j]][axis]
		})
		mid = start + count/2
	}

	b.partition(start, mid, depth+1)
	right := b.partition(mid, end, depth+1)
	b.nodes[index].Right = right
	return index
}

func (b *builder) leaf(index int32, start, end int) int32 {
	b.nodes[index].First = uint32(start)
	b.nodes[index].Count = uint32(end - start)
	b.stats.Leaves++
	return index
}

func (b *builder) bin(p uint32, axis int, centroidBounds math.AABB) int {
	extent := centroidBounds.Max[axis] - centroidBounds.Min[axis]
	if extent <= 0 {
		return 0
	}
	i := int(sahBins * (b.centers[p][axis] - centroidBounds.Min[axis]) / extent)
	return math.Clamp(i, 0, sahBins-1)
}

// bestSplit returns the axis and last bin of the left side for the cheapest
// split. ok is false when every axis has a degenerate centroid extent.
func (b *builder) bestSplit(start, end int, centroidBounds math.AABB) (axis, splitBin int, cost float32, ok bool) {
	type bucket struct {
		count  int
		bounds math.AABB
	}

	for a := 0; a < 3; a++ {
		if centroidBounds.Max[a]-centroidBounds.Min[a] <= 0 {
			continue
		}

		var buckets [sahBins]bucket
		for i := range buckets {
			buckets[i].bounds = math.EmptyAABB()
		}
		for _, p := range b.order[start:end] {
			i := b.bin(p, a, centroidBounds)
			buckets[i].count++
			buckets[i].bounds = buckets[i].bounds.Union(b.bounds[p])
		}

		// suffix sweep so each candidate is scored in constant time
		var rightArea [sahBins]float32
		var rightCount [sahBins]int
		acc := math.EmptyAABB()
		n := 0
		for i := sahBins - 1; i > 0; i-- {
			acc = acc.Union(buckets[i].bounds)
			n += buckets[i].count
			rightArea[i] = acc.SurfaceArea()
			rightCount[i] = n
		}

		acc = math.EmptyAABB()
		n = 0
		for i := 0; i < sahBins-1; i++ {
			acc = acc.Union(buckets[i].bounds)
			n += buckets[i].count
			if n == 0 || rightCount[i+1] == 0 {
				continue
			}
			c := traversalCost + acc.SurfaceArea()*float32(n) + rightArea[i+1]*float32(rightCount[i+1])
			if !ok || c < cost {
				axis, splitBin, cost, ok = a, i, c, true
			}
		}
	}
	return axis, splitBin, cost, ok
}

// Refit recomputes every node's bounds from new primitive bounds, keeping
// the topology. The primitive count must not change.
func (bvh *BVH) Refit(bounds []math.AABB) bool {
	if len(bounds) != len(bvh.Order) {
		return false
	}
	// children always come after their parent
	for i := len(bvh.Nodes) - 1; i >= 0; i-- {
		n := &bvh.Nodes[i]
		if n.IsLeaf() {
			bb := math.EmptyAABB()
			for _, p := range bvh.Order[n.First : n.First+n.Count] {
				bb = bb.Union(bounds[p])
			}
			n.Bounds = bb
			continue
		}
		n.Bounds = bvh.Nodes[i+1].Bounds.Union(bvh.Nodes[n.Right].Bounds)
	}
	return true
}

// Bounds returns the root bounds.
func (bvh *BVH) Bounds() math.AABB {
	if len(bvh.Nodes) == 0 {
		return math.EmptyAABB()
	}
	return bvh.Nodes[0].Bounds
}

// IntersectFunc tests primitive prim and returns the hit distance if it is
// within [tMin, tMax].
type IntersectFunc func(prim uint32, tMin, tMax float32) (float32, bool)

// Traverse returns the closest primitive hit along r. With anyHit set it
// returns the first hit found instead.
func (bvh *BVH) Traverse(r math.Ray, tMin, tMax float32, anyHit bool, intersect IntersectFunc) (uint32, float32, bool) {
	if len(bvh.Nodes) == 0 {
		return 0, 0, false
	}

	invDir := r.InvDirection()
	var buf [64]int32
	stack := append(buf[:0], 0)

	var (
		found       bool
		closestPrim uint32
		closest     = tMax
	)

	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &bvh.Nodes[ni]
		if _, ok := n.Bounds.IntersectRay(r.Origin, invDir, tMin, closest); !ok {
			continue
		}

		if n.IsLeaf() {
			for _, p := range bvh.Order[n.First : n.First+n.Count] {
				if t, ok := intersect(p, tMin, closest); ok && t <= closest {
					closest, closestPrim, found = t, p, true
					if anyHit {
						return closestPrim, closest, true
					}
				}
			}
			continue
		}

		left, right := ni+1, n.Right
		tl, okl := bvh.Nodes[left].Bounds.IntersectRay(r.Origin, invDir, tMin, closest)
		tr, okr := bvh.Nodes[right].Bounds.IntersectRay(r.Origin, invDir, tMin, closest)
		switch {
		case okl && okr:
			// visit the nearer child first
			if tl <= tr {
				stack = append(stack, right, left)
			} else {
				stack = append(stack, left, right)
			}
		case okl:
			stack = append(stack, left)
		case okr:
			stack = append(stack, right)
		}
	}
	return closestPrim, closest, found
}
