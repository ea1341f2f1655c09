package browser

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

// Point is a viewport coordinate
type Point struct {
	X, Y float64
}

// BezierPath returns a curved pointer path from one point to another. Two
// control points are displaced off the straight line so the motion arcs.
// The last point is always exactly to.
func BezierPath(from, to Point, steps int, rnd *rand.Rand) []Point {
	if steps < 2 {
		steps = 2
	}
	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)
	spread := math.Min(dist*0.3, 120)

	c1 := Point{
		X: from.X + dx*0.3 + (rnd.Float64()*2-1)*spread,
		Y: from.Y + dy*0.3 + (rnd.Float64()*2-1)*spread,
	}
	c2 := Point{
		X: from.X + dx*0.7 + (rnd.Float64()*2-1)*spread,
		Y: from.Y + dy*0.7 + (rnd.Float64()*2-1)*spread,
	}

	path := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOut(float64(i) / float64(steps))
		u := 1 - t
		path = append(path, Point{
			X: u*u*u*from.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*to.X,
			Y: u*u*u*from.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*to.Y,
		})
	}
	path[len(path)-1] = to
	return path
}

func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

// Pointer tracks the simulated mouse position across clicks
type Pointer struct {
	mu  sync.Mutex
	pos Point
	rnd *rand.Rand
}

// NewPointer creates a pointer resting at origin
func NewPointer(origin Point, seed int64) *Pointer {
	return &Pointer{pos: origin, rnd: rand.New(rand.NewSource(seed))}
}

// Position returns the last known pointer position
func (p *Pointer) Position() Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Target picks a click point inside the middle of el
func (p *Pointer) Target(el Element) Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := el.Center()
	return Point{
		X: c.X + (p.rnd.Float64()*2-1)*el.Width*0.2,
		Y: c.Y + (p.rnd.Float64()*2-1)*el.Height*0.2,
	}
}

// Click moves along a curved path to el and clicks it
func (p *Pointer) Click(ctx context.Context, page Page, el Element) error {
	target := p.Target(el)

	p.mu.Lock()
	from := p.pos
	steps := 12 + int(math.Hypot(target.X-from.X, target.Y-from.Y)/40)
	if steps > 40 {
		steps = 40
	}
	path := BezierPath(from, target, steps, p.rnd)
	p.mu.Unlock()

	for _, pt := range path {
		if err := page.MouseMove(ctx, pt.X, pt.Y); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.pos = target
	p.mu.Unlock()

	return page.MouseClick(ctx, target.X, target.Y)
}
