// Package render draws a graph view as a standalone SVG document.
package render

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/santoshpalla27/topograph/internal/graphview"
	"github.com/santoshpalla27/topograph/internal/layout"
	"github.com/santoshpalla27/topograph/pkg/api"
)

// EdgeColors maps each relationship type to its stroke and arrowhead color.
var EdgeColors = map[api.RelationshipType]string{
	api.RelRoutesTo:   "#2563eb",
	api.RelDependsOn:  "#9333ea",
	api.RelTriggers:   "#f59e0b",
	api.RelConnectsTo: "#10b981",
	api.RelPartOf:     "#64748b",
	api.RelInstanceOf: "#ef4444",
}

var nodeColors = map[api.ResourceType]string{
	api.ResourceTypeEC2:           "#fb923c",
	api.ResourceTypeECS:           "#f97316",
	api.ResourceTypeLambda:        "#facc15",
	api.ResourceTypeRDS:           "#60a5fa",
	api.ResourceTypeRDSCluster:    "#3b82f6",
	api.ResourceTypeLoadBalancer:  "#a78bfa",
	api.ResourceTypeAPIGateway:    "#c084fc",
	api.ResourceTypeEventBridge:   "#f472b6",
	api.ResourceTypeStepFunctions: "#fb7185",
	api.ResourceTypeDynamoDB:      "#34d399",
}

const (
	externalFill   = "#e5e7eb"
	externalStroke = "#9ca3af"
	defaultFill    = "#cbd5e1"
	dimOpacity     = 0.15
	padding        = 40.0
	labelMargin    = 28.0
	legendWidth    = 170.0
	legendRow      = 22.0
	maxLabel       = 24
)

// Options tunes the drawing. Zero values take defaults.
type Options struct {
	Layout layout.Config
	// Pins fixes nodes at known coordinates, e.g. positions a client dragged them to.
	Pins []Pin
}

// Pin is a node held at a fixed position.
type Pin struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Radius is the drawn size of a node of type t.
func Radius(t api.ResourceType) float64 {
	switch t {
	case api.ResourceTypeRDSCluster, api.ResourceTypeLoadBalancer, api.ResourceTypeAPIGateway:
		return 18
	case api.ResourceTypeECS, api.ResourceTypeStepFunctions:
		return 16
	default:
		return 13
	}
}

// SVG lays out req and writes it to w. The returned view reports dropped and hidden edges.
// An empty view is written as a message instead of a canvas.
func SVG(w io.Writer, req api.RenderRequest, opts Options) (graphview.View, error) {
	view := graphview.Build(req)

	var b strings.Builder
	if view.Empty != graphview.NotEmpty {
		writeEmpty(&b, view.Empty)
	} else {
		sim := simulate(view, opts)
		writeGraph(&b, view, sim, req.Highlight)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return view, fmt.Errorf("failed to write svg: %w", err)
	}
	return view, nil
}

func simulate(view graphview.View, opts Options) *layout.Simulation {
	specs := make([]layout.NodeSpec, 0, len(view.Nodes))
	for _, n := range view.Nodes {
		specs = append(specs, layout.NodeSpec{ID: n.Resource.ID, Radius: Radius(n.Resource.Type)})
	}
	links := make([]layout.Link, 0, len(view.Edges))
	for _, e := range view.Edges {
		links = append(links, layout.Link{Source: e.SourceID, Target: e.TargetID})
	}
	sim := layout.New(specs, links, opts.Layout)
	for _, p := range opts.Pins {
		sim.Pin(p.ID, p.X, p.Y)
	}
	sim.Run()
	return sim
}

func writeEmpty(b *strings.Builder, state graphview.EmptyState) {
	const width, height = 480.0, 120.0
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" role="img">`+"\n",
		width, height, width, height)
	fmt.Fprintf(b, `<text class="empty-state" x="%.0f" y="%.0f" text-anchor="middle" font-family="sans-serif" font-size="16" fill="#6b7280">%s</text>`+"\n",
		width/2, height/2, escape(string(state)))
	b.WriteString("</svg>\n")
}

func writeGraph(b *strings.Builder, view graphview.View, sim *layout.Simulation, highlight string) {
	minX, minY, maxX, maxY := sim.Bounds()
	dx := legendWidth + padding - minX
	dy := padding - minY
	width := legendWidth + (maxX - minX) + 2*padding
	height := math.Max(legendHeight(), maxY-minY+labelMargin) + 2*padding

	lit, litEdges := highlightSet(sim, highlight)

	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" font-family="sans-serif" role="img">`+"\n",
		width, height, width, height)
	writeMarkers(b)
	writeLegend(b)

	fmt.Fprintf(b, `<g class="edges" transform="translate(%.1f %.1f)">`+"\n", dx, dy)
	for i, e := range view.Edges {
		src, _ := sim.Node(e.SourceID)
		tgt, _ := sim.Node(e.TargetID)
		x1, y1, x2, y2 := trim(src, tgt)
		color := edgeColor(e.Type)
		fmt.Fprintf(b, `<line class="edge %s" x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="1.5" marker-end="url(#arrow-%s)"%s>`,
			escape(string(e.Type)), x1, y1, x2, y2, color, escape(string(e.Type)), opacity(litEdges, i))
		fmt.Fprintf(b, "<title>%s</title></line>\n", escape(EdgeTooltip(e)))
	}
	b.WriteString("</g>\n")

	fmt.Fprintf(b, `<g class="nodes" transform="translate(%.1f %.1f)">`+"\n", dx, dy)
	for _, n := range view.Nodes {
		p, _ := sim.Node(n.Resource.ID)
		writeNode(b, n, p, nodeOpacity(lit, n.Resource.ID))
	}
	b.WriteString("</g>\n</svg>\n")
}

func writeNode(b *strings.Builder, n graphview.Node, p layout.Node, dim string) {
	class, fill, stroke, dash := "node", nodeColor(n.Resource.Type), "#1f2937", ""
	if n.External {
		class, fill, stroke, dash = "node external", externalFill, externalStroke, ` stroke-dasharray="4 3"`
	}
	fmt.Fprintf(b, `<g class="%s" data-id="%s"%s>`, class, escape(n.Resource.ID), dim)
	fmt.Fprintf(b, "<title>%s</title>", escape(NodeTooltip(n)))
	fmt.Fprintf(b, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s" stroke="%s" stroke-width="1.5"%s/>`,
		p.X, p.Y, p.Radius, fill, stroke, dash)

	label := truncate(n.Resource.Name)
	ly := p.Y + p.Radius + 14
	if n.External {
		w := 6.5*float64(len([]rune(label))) + 8
		fmt.Fprintf(b, `<rect x="%.1f" y="%.1f" width="%.1f" height="16" rx="3" fill="none" stroke="%s" stroke-dasharray="3 2"/>`,
			p.X-w/2, ly-12, w, externalStroke)
		fmt.Fprintf(b, `<text x="%.1f" y="%.1f" text-anchor="middle" font-size="11" fill="#6b7280" font-style="italic">%s</text>`,
			p.X, ly, escape(label))
	} else {
		fmt.Fprintf(b, `<text x="%.1f" y="%.1f" text-anchor="middle" font-size="11" fill="#111827">%s</text>`,
			p.X, ly, escape(label))
	}
	b.WriteString("</g>\n")
}

func writeMarkers(b *strings.Builder) {
	b.WriteString("<defs>\n")
	for _, t := range api.RelationshipTypes {
		fmt.Fprintf(b, `<marker id="arrow-%s" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="7" markerHeight="7" orient="auto-start-reverse"><path d="M0,0 L10,5 L0,10 z" fill="%s"/></marker>`+"\n",
			t, EdgeColors[t])
	}
	b.WriteString("</defs>\n")
}

func writeLegend(b *strings.Builder) {
	b.WriteString(`<g class="legend" transform="translate(12 16)">` + "\n")
	for i, t := range api.RelationshipTypes {
		y := float64(i) * legendRow
		fmt.Fprintf(b, `<line x1="0" y1="%.1f" x2="34" y2="%.1f" stroke="%s" stroke-width="2" marker-end="url(#arrow-%s)"/>`,
			y, y, EdgeColors[t], t)
		fmt.Fprintf(b, `<text x="44" y="%.1f" font-size="12" fill="#374151">%s</text>`+"\n", y+4, t)
	}
	y := float64(len(api.RelationshipTypes)) * legendRow
	fmt.Fprintf(b, `<circle cx="17" cy="%.1f" r="7" fill="%s" stroke="%s" stroke-dasharray="4 3"/>`, y, externalFill, externalStroke)
	fmt.Fprintf(b, `<text x="44" y="%.1f" font-size="12" fill="#374151">external</text>`+"\n", y+4)
	b.WriteString("</g>\n")
}

func legendHeight() float64 {
	return float64(len(api.RelationshipTypes)+1)*legendRow + 16
}

// highlightSet returns the ids and edge indexes left undimmed, or nils when nothing is highlighted.
func highlightSet(sim *layout.Simulation, id string) (map[string]bool, map[int]bool) {
	if id == "" {
		return nil, nil
	}
	if _, ok := sim.Node(id); !ok {
		return nil, nil
	}
	nodes, links := sim.Neighbors(id)
	lit := map[string]bool{id: true}
	for _, n := range nodes {
		lit[n] = true
	}
	edges := make(map[int]bool, len(links))
	for _, i := range links {
		edges[i] = true
	}
	return lit, edges
}

func nodeOpacity(lit map[string]bool, id string) string {
	if lit == nil || lit[id] {
		return ""
	}
	return fmt.Sprintf(` opacity="%.2f"`, dimOpacity)
}

func opacity(lit map[int]bool, i int) string {
	if lit == nil || lit[i] {
		return ""
	}
	return fmt.Sprintf(` opacity="%.2f"`, dimOpacity)
}

// trim shortens the segment between two nodes so the arrowhead touches the target's rim.
func trim(src, tgt layout.Node) (x1, y1, x2, y2 float64) {
	dx, dy := tgt.X-src.X, tgt.Y-src.Y
	d := math.Hypot(dx, dy)
	if d == 0 {
		return src.X, src.Y, tgt.X, tgt.Y
	}
	ux, uy := dx/d, dy/d
	return src.X + ux*src.Radius, src.Y + uy*src.Radius, tgt.X - ux*(tgt.Radius+2), tgt.Y - uy*(tgt.Radius+2)
}

func edgeColor(t api.RelationshipType) string {
	if c, ok := EdgeColors[t]; ok {
		return c
	}
	return "#9ca3af"
}

func nodeColor(t api.ResourceType) string {
	if c, ok := nodeColors[t]; ok {
		return c
	}
	return defaultFill
}

// EdgeTooltip describes an edge and the metadata explaining it.
func EdgeTooltip(e api.Relationship) string {
	lines := []string{fmt.Sprintf("%s → %s (%s)", e.SourceID, e.TargetID, e.Type)}
	m := e.Metadata
	if m == nil {
		return lines[0]
	}
	if m.Protocol != "" || m.Port != 0 {
		lines = append(lines, "Port: "+portLabel(m.Protocol, m.Port))
	}
	if m.EventType != "" {
		lines = append(lines, "Event: "+m.EventType)
	}
	if m.Method != "" || m.Path != "" {
		lines = append(lines, "Route: "+strings.TrimSpace(m.Method+" "+m.Path))
	}
	if m.State != "" {
		lines = append(lines, "State: "+m.State)
	}
	if sg := m.SecurityGroups; sg != nil {
		lines = append(lines, fmt.Sprintf("Security groups: %s → %s",
			strings.Join(sg.Source, ", "), strings.Join(sg.Target, ", ")))
		for _, r := range sg.Rules {
			lines = append(lines, fmt.Sprintf("Rule: %s %s %s via %s",
				r.Direction, protocolLabel(r.Protocol), portRange(r.FromPort, r.ToPort), r.SecurityGroupID))
		}
	}
	return strings.Join(lines, "\n")
}

// NodeTooltip describes a node.
func NodeTooltip(n graphview.Node) string {
	r := n.Resource
	lines := []string{
		r.Name,
		fmt.Sprintf("%s · %s", r.Type, r.Status),
		"Application: " + r.Application,
	}
	if r.Region != "" {
		lines = append(lines, "Region: "+r.Region)
	}
	if n.External {
		lines = append(lines, "External resource")
	}
	return strings.Join(lines, "\n")
}

func portLabel(protocol string, port int32) string {
	switch {
	case port == 0:
		return protocolLabel(protocol)
	case protocol == "":
		return fmt.Sprintf("%d", port)
	default:
		return fmt.Sprintf("%s/%d", protocolLabel(protocol), port)
	}
}

func protocolLabel(p string) string {
	if p == "-1" || p == "" {
		return "all"
	}
	return strings.ToUpper(p)
}

func portRange(from, to int32) string {
	switch {
	case from <= 0 && (to <= 0 || to == 65535):
		return "all ports"
	case from == to:
		return fmt.Sprintf("port %d", from)
	default:
		return fmt.Sprintf("ports %d-%d", from, to)
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLabel {
		return s
	}
	return string(r[:maxLabel-1]) + "…"
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
