package accel

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"golang.org/x/exp/rand"
)

func boxAt(min, max math.Vec3) math.AABB {
	return math.AABB{Min: min, Max: max}
}

func TestBuildLeafPerPrimitive(t *testing.T) {
	bounds := []math.AABB{
		boxAt(math.Vec3{-2, 0, -2}, math.Vec3{-1, 1, -1}),
		boxAt(math.Vec3{1, 0, -2}, math.Vec3{2, 1, -1}),
		boxAt(math.Vec3{-2, 0, 1}, math.Vec3{-1, 1, 2}),
		boxAt(math.Vec3{1, 0, 1}, math.Vec3{2, 1, 2}),
	}

	bvh := Build(bounds, 1)
	if exp := 7; len(bvh.Nodes) != exp {
		t.Fatalf("expected bvh tree to have %d nodes; got %d", exp, len(bvh.Nodes))
	}
	if exp := 4; bvh.Stats.Leaves != exp {
		t.Fatalf("expected %d leaves; got %d", exp, bvh.Stats.Leaves)
	}

	root := bvh.Bounds()
	exp := boxAt(math.Vec3{-2, 0, -2}, math.Vec3{2, 1, 2})
	if root != exp {
		t.Fatalf("expected root bounds %v; got %v", exp, root)
	}
}

func randomBounds(rng *rand.Rand, n int) []math.AABB {
	out := make([]math.AABB, n)
	for i := range out {
		c := math.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10}
		h := math.Vec3{rng.Float32() + 0.01, rng.Float32() + 0.01, rng.Float32() + 0.01}
		out[i] = boxAt(c.Sub(h), c.Add(h))
	}
	return out
}

func TestBuildInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, maxLeaf := range []int{1, 2, 4, 8} {
		bounds := randomBounds(rng, 257)
		bvh := Build(bounds, maxLeaf)

		seen := make([]int, len(bounds))
		for _, p := range bvh.Order {
			seen[p]++
		}
		for p, n := range seen {
			if n != 1 {
				t.Fatalf("[maxLeaf %d] expected primitive %d to appear once; appeared %d times", maxLeaf, p, n)
			}
		}

		for i := range bvh.Nodes {
			n := &bvh.Nodes[i]
			if n.IsLeaf() {
				if int(n.Count) > maxLeaf {
					t.Fatalf("[maxLeaf %d] leaf %d holds %d primitives", maxLeaf, i, n.Count)
				}
				for _, p := range bvh.Order[n.First : n.First+n.Count] {
					if n.Bounds.Union(bounds[p]) != n.Bounds {
						t.Fatalf("[maxLeaf %d] leaf %d does not contain primitive %d", maxLeaf, i, p)
					}
				}
				continue
			}
			for _, c := range []int32{int32(i) + 1, n.Right} {
				if n.Bounds.Union(bvh.Nodes[c].Bounds) != n.Bounds {
					t.Fatalf("[maxLeaf %d] node %d does not contain child %d", maxLeaf, i, c)
				}
			}
		}
	}
}

func TestBuildDegenerateCentroids(t *testing.T) {
	bounds := make([]math.AABB, 9)
	for i := range bounds {
		bounds[i] = boxAt(math.Vec3{-1, -1, -1}, math.Vec3{1, 1, 1})
	}
	bvh := Build(bounds, 2)
	for i := range bvh.Nodes {
		if bvh.Nodes[i].IsLeaf() && bvh.Nodes[i].Count > 2 {
			t.Fatalf("expected median split to bound leaves to 2 primitives; leaf %d has %d", i, bvh.Nodes[i].Count)
		}
	}
}

func TestRefitKeepsTopology(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	bounds := randomBounds(rng, 64)
	bvh := Build(bounds, 2)
	nodeCount := len(bvh.Nodes)

	offset := math.Vec3{100, 0, 0}
	moved := make([]math.AABB, len(bounds))
	for i, b := range bounds {
		moved[i] = boxAt(b.Min.Add(offset), b.Max.Add(offset))
	}
	if !bvh.Refit(moved) {
		t.Fatal("expected refit to succeed")
	}
	if len(bvh.Nodes) != nodeCount {
		t.Fatalf("expected %d nodes after refit; got %d", nodeCount, len(bvh.Nodes))
	}
	if root := bvh.Bounds(); root.Min[0] < 80 {
		t.Fatalf("expected refitted root to move with the primitives; got %v", root)
	}
	if bvh.Refit(moved[:10]) {
		t.Fatal("expected refit with a different primitive count to fail")
	}
}

func TestTraverseMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	positions := make([]math.Vec3, 0, 3*200)
	for i := 0; i < 200; i++ {
		c := math.Vec3{rng.Float32()*10 - 5, rng.Float32()*10 - 5, rng.Float32()*10 - 5}
		for k := 0; k < 3; k++ {
			positions = append(positions, c.Add(math.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5}))
		}
	}
	blas, err := BuildBottomLevel(positions, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 500; i++ {
		r := math.Ray{
			Origin:    math.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, -20},
			Direction: math.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, 1}.Normalize(),
		}

		expHit := false
		var expT float32 = 1e30
		for _, tri := range blas.Triangles {
			if th, _, _, ok := math.IntersectTriangle(r, tri[0], tri[1], tri[2], 0, expT); ok {
				expHit, expT = true, th
			}
		}

		hit, ok := blas.Intersect(r, 0, 1e30, false)
		if ok != expHit {
			t.Fatalf("[ray %d] expected hit %t; got %t", i, expHit, ok)
		}
		if ok && hit.T != expT {
			t.Fatalf("[ray %d] expected closest t %f; got %f", i, expT, hit.T)
		}
	}
}
