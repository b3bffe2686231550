// Package layout positions graph nodes with a cooperatively stepped force simulation.
//
// Each tick applies, in order, a link spring, many-body repulsion, centering and collision,
// then integrates velocities. Pinned nodes keep their coordinates but still exert forces.
package layout

import "math"

// Config holds the force parameters. Zero fields take DefaultConfig values.
type Config struct {
	LinkDistance     float64
	ChargeStrength   float64
	CollisionPadding float64
	VelocityDecay    float64
	AlphaMin         float64
	EnergyThreshold  float64
	MaxTicks         int
}

// DefaultConfig returns the standard force parameters.
func DefaultConfig() Config {
	return Config{
		LinkDistance:     90,
		ChargeStrength:   -300,
		CollisionPadding: 4,
		VelocityDecay:    0.4,
		AlphaMin:         0.001,
		EnergyThreshold:  0.01,
		MaxTicks:         1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LinkDistance == 0 {
		c.LinkDistance = d.LinkDistance
	}
	if c.ChargeStrength == 0 {
		c.ChargeStrength = d.ChargeStrength
	}
	if c.CollisionPadding == 0 {
		c.CollisionPadding = d.CollisionPadding
	}
	if c.VelocityDecay == 0 {
		c.VelocityDecay = d.VelocityDecay
	}
	if c.AlphaMin == 0 {
		c.AlphaMin = d.AlphaMin
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.MaxTicks == 0 {
		c.MaxTicks = d.MaxTicks
	}
	return c
}

// ReheatAlpha is the energy injected when a node is dragged or released.
const ReheatAlpha = 0.3

// NodeSpec describes a node to place.
type NodeSpec struct {
	ID     string
	Radius float64
}

// Link connects two node ids.
type Link struct {
	Source string
	Target string
}

// Node is the simulated state of a node.
type Node struct {
	ID     string
	Radius float64
	X, Y   float64
	VX, VY float64
	Pinned bool
	FX, FY float64
}

type link struct {
	source, target int
	strength       float64
	bias           float64
}

// Simulation is single-threaded; callers step it from one goroutine.
type Simulation struct {
	cfg        Config
	nodes      []Node
	byID       map[string]int
	links      []link
	adjacency  [][]int
	incident   [][]int
	alpha      float64
	alphaDecay float64
	energy     float64
	ticks      int
}

// New builds a simulation with nodes on a phyllotaxis spiral. Links naming unknown
// nodes or looping on one node are ignored.
func New(specs []NodeSpec, links []Link, cfg Config) *Simulation {
	cfg = cfg.withDefaults()
	s := &Simulation{
		cfg:        cfg,
		byID:       make(map[string]int, len(specs)),
		alpha:      1,
		alphaDecay: 1 - math.Pow(cfg.AlphaMin, 1.0/300),
	}

	const initialRadius = 10
	initialAngle := math.Pi * (3 - math.Sqrt(5))
	for _, spec := range specs {
		if _, dup := s.byID[spec.ID]; dup {
			continue
		}
		i := len(s.nodes)
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := float64(i) * initialAngle
		s.byID[spec.ID] = i
		s.nodes = append(s.nodes, Node{ID: spec.ID, Radius: spec.Radius, X: r * math.Cos(a), Y: r * math.Sin(a)})
	}
	s.adjacency = make([][]int, len(s.nodes))
	s.incident = make([][]int, len(s.nodes))

	degree := make([]int, len(s.nodes))
	for _, l := range links {
		si, ok1 := s.byID[l.Source]
		ti, ok2 := s.byID[l.Target]
		if !ok1 || !ok2 || si == ti {
			continue
		}
		s.links = append(s.links, link{source: si, target: ti})
		degree[si]++
		degree[ti]++
	}
	for i, l := range s.links {
		s.links[i].strength = 1 / float64(min(degree[l.source], degree[l.target]))
		s.links[i].bias = float64(degree[l.source]) / float64(degree[l.source]+degree[l.target])
		s.adjacency[l.source] = append(s.adjacency[l.source], l.target)
		s.adjacency[l.target] = append(s.adjacency[l.target], l.source)
		s.incident[l.source] = append(s.incident[l.source], i)
		s.incident[l.target] = append(s.incident[l.target], i)
	}
	return s
}

// Alpha is the current cooling factor.
func (s *Simulation) Alpha() float64 { return s.alpha }

// Energy is the mean squared speed of free nodes after the last tick.
func (s *Simulation) Energy() float64 { return s.energy }

// Ticks counts steps taken so far.
func (s *Simulation) Ticks() int { return s.ticks }

// Stable reports whether the layout has cooled or stopped moving.
func (s *Simulation) Stable() bool {
	return s.alpha < s.cfg.AlphaMin || (s.ticks > 0 && s.energy < s.cfg.EnergyThreshold)
}

// Tick advances the simulation one step and returns the resulting energy.
func (s *Simulation) Tick() float64 {
	s.alpha += (0 - s.alpha) * s.alphaDecay
	s.applyLinks()
	s.applyCharge()
	s.applyCenter()
	s.applyCollision()

	var sum float64
	free := 0
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.Pinned {
			n.X, n.Y = n.FX, n.FY
			n.VX, n.VY = 0, 0
			continue
		}
		n.VX *= 1 - s.cfg.VelocityDecay
		n.VY *= 1 - s.cfg.VelocityDecay
		n.X += n.VX
		n.Y += n.VY
		sum += n.VX*n.VX + n.VY*n.VY
		free++
	}
	s.energy = 0
	if free > 0 {
		s.energy = sum / float64(free)
	}
	s.ticks++
	return s.energy
}

// Run steps until stable or the tick limit, returning the number of ticks taken.
func (s *Simulation) Run() int {
	if len(s.nodes) == 0 {
		return 0
	}
	n := 0
	for n < s.cfg.MaxTicks {
		s.Tick()
		n++
		if s.Stable() {
			break
		}
	}
	return n
}

// Pin fixes a node at (x, y), as while it is being dragged, and reheats the layout.
func (s *Simulation) Pin(id string, x, y float64) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	n := &s.nodes[i]
	n.Pinned = true
	n.FX, n.FY = x, y
	n.X, n.Y = x, y
	n.VX, n.VY = 0, 0
	s.reheat()
	return true
}

// Release returns a pinned node to automatic positioning and reheats the layout.
func (s *Simulation) Release(id string) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.nodes[i].Pinned = false
	s.reheat()
	return true
}

func (s *Simulation) reheat() {
	if s.alpha < ReheatAlpha {
		s.alpha = ReheatAlpha
	}
	s.energy = math.Inf(1)
}

// Neighbors returns the ids directly linked to id and the indexes of its incident links,
// the set highlighted while id is hovered.
func (s *Simulation) Neighbors(id string) (nodes []string, links []int) {
	i, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	seen := make(map[int]struct{})
	for _, j := range s.adjacency[i] {
		if _, dup := seen[j]; dup {
			continue
		}
		seen[j] = struct{}{}
		nodes = append(nodes, s.nodes[j].ID)
	}
	return nodes, append([]int(nil), s.incident[i]...)
}

// Node returns the state of one node.
func (s *Simulation) Node(id string) (Node, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Nodes returns a snapshot of every node in insertion order.
func (s *Simulation) Nodes() []Node {
	return append([]Node(nil), s.nodes...)
}

// Bounds returns the extent of all nodes including their radii.
func (s *Simulation) Bounds() (minX, minY, maxX, maxY float64) {
	if len(s.nodes) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, n := range s.nodes {
		minX = math.Min(minX, n.X-n.Radius)
		minY = math.Min(minY, n.Y-n.Radius)
		maxX = math.Max(maxX, n.X+n.Radius)
		maxY = math.Max(maxY, n.Y+n.Radius)
	}
	return minX, minY, maxX, maxY
}

// jiggle separates coincident nodes deterministically.
func jiggle(i int) float64 {
	return (float64(i%7) - 3 + 0.5) * 1e-6
}

func (s *Simulation) applyLinks() {
	for _, l := range s.links {
		src, tgt := &s.nodes[l.source], &s.nodes[l.target]
		x := tgt.X + tgt.VX - src.X - src.VX
		y := tgt.Y + tgt.VY - src.Y - src.VY
		if x == 0 {
			x = jiggle(l.source)
		}
		if y == 0 {
			y = jiggle(l.target)
		}
		d := math.Sqrt(x*x + y*y)
		k := (d - s.cfg.LinkDistance) / d * s.alpha * l.strength
		x *= k
		y *= k
		tgt.VX -= x * l.bias
		tgt.VY -= y * l.bias
		src.VX += x * (1 - l.bias)
		src.VY += y * (1 - l.bias)
	}
}

func (s *Simulation) applyCharge() {
	const distanceMin2 = 1.0
	for i := range s.nodes {
		a := &s.nodes[i]
		for j := range s.nodes {
			if i == j {
				continue
			}
			b := &s.nodes[j]
			x := b.X - a.X
			y := b.Y - a.Y
			if x == 0 {
				x = jiggle(i + j)
			}
			if y == 0 {
				y = jiggle(i * j)
			}
			l := x*x + y*y
			if l < distanceMin2 {
				l = math.Sqrt(distanceMin2 * l)
			}
			w := s.cfg.ChargeStrength * s.alpha / l
			a.VX += x * w
			a.VY += y * w
		}
	}
}

func (s *Simulation) applyCenter() {
	var sx, sy float64
	for _, n := range s.nodes {
		sx += n.X
		sy += n.Y
	}
	sx /= float64(len(s.nodes))
	sy /= float64(len(s.nodes))
	for i := range s.nodes {
		s.nodes[i].X -= sx
		s.nodes[i].Y -= sy
	}
}

func (s *Simulation) applyCollision() {
	for i := range s.nodes {
		a := &s.nodes[i]
		ra := a.Radius + s.cfg.CollisionPadding
		for j := i + 1; j < len(s.nodes); j++ {
			b := &s.nodes[j]
			rb := b.Radius + s.cfg.CollisionPadding
			r := ra + rb
			x := a.X + a.VX - b.X - b.VX
			y := a.Y + a.VY - b.Y - b.VY
			if x == 0 {
				x = jiggle(i)
			}
			if y == 0 {
				y = jiggle(j)
			}
			l := x*x + y*y
			if l >= r*r {
				continue
			}
			l = math.Sqrt(l)
			k := (r - l) / l
			x *= k
			y *= k
			share := rb * rb / (ra*ra + rb*rb)
			a.VX += x * share
			a.VY += y * share
			b.VX -= x * (1 - share)
			b.VY -= y * (1 - share)
		}
	}
}
