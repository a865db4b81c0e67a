package virtual

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

func newID() string { return uuid.NewString() }

type nodeKind int

const (
	nodeSource nodeKind = iota
	nodeGain
	nodeDestination
	nodeOutput
)

// node is a vertex of the routing graph. Sources carry a label; other nodes
// resolve to the set of sources reachable upstream.
type node struct {
	ctx   *audioContext
	kind  nodeKind
	label string
	level float64

	inputs  []*node
	outputs []*node
}

func (n *node) Label() string { return n.label }

func (n *node) Connect(dst media.AudioNode) error {
	d, ok := asNode(dst)
	if !ok || d.ctx != n.ctx {
		return fmt.Errorf("connect: %w: node from another context", media.ErrInvalidState)
	}
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.ctx.closed {
		return fmt.Errorf("connect: %w: context closed", media.ErrInvalidState)
	}
	if d.kind == nodeSource {
		return fmt.Errorf("connect: %w: %s has no input", media.ErrNotSupported, d.label)
	}
	if slices.Contains(n.outputs, d) {
		return nil
	}
	n.outputs = append(n.outputs, d)
	d.inputs = append(d.inputs, n)
	return nil
}

// asNode resolves the routing vertex behind an AudioNode. Destinations wrap
// their node.
func asNode(an media.AudioNode) (*node, bool) {
	switch v := an.(type) {
	case *node:
		return v, v != nil
	case *destination:
		if v == nil {
			return nil, false
		}
		return v.node, v.node != nil
	}
	return nil, false
}

func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, d := range n.outputs {
		d.inputs = slices.DeleteFunc(d.inputs, func(x *node) bool { return x == n })
	}
	n.outputs = nil
}

// sourcesLocked returns the sorted labels of audible sources feeding n.
// Sources behind a zero gain are silent and omitted.
func (n *node) sourcesLocked() []string {
	seen := make(map[string]bool)
	var walk func(*node)
	walk = func(cur *node) {
		if cur.kind == nodeGain && cur.level == 0 {
			return
		}
		if cur.kind == nodeSource {
			seen[cur.label] = true
			return
		}
		for _, in := range cur.inputs {
			walk(in)
		}
	}
	walk(n)
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

type destination struct {
	*node
	stream *media.SimpleStream
	track  *audioTrack
}

func (d *destination) Stream() media.Stream { return d.stream }

type audioContext struct {
	p *Platform

	mu       sync.Mutex
	closed   bool
	output   *node
	nodes    []*node
	elements []media.MediaElement
	dests    []*destination
}

func newAudioContext(p *Platform) *audioContext {
	c := &audioContext{p: p}
	c.output = &node{ctx: c, kind: nodeOutput, label: "speakers"}
	return c
}

func (c *audioContext) add(n *node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("audio context: %w: closed", media.ErrInvalidState)
	}
	c.nodes = append(c.nodes, n)
	return nil
}

func (c *audioContext) ElementSource(el media.MediaElement) (media.AudioNode, error) {
	if el == nil {
		return nil, fmt.Errorf("element source: %w: nil element", media.ErrInvalidState)
	}
	if !c.p.bind(el, c) {
		return nil, fmt.Errorf("element source: %w: element already has a source node", media.ErrInvalidState)
	}
	n := &node{ctx: c, kind: nodeSource, label: "element:" + el.Source()}
	if err := c.add(n); err != nil {
		c.p.unbind(el)
		return nil, err
	}
	c.mu.Lock()
	c.elements = append(c.elements, el)
	c.mu.Unlock()
	return n, nil
}

func (c *audioContext) StreamSource(s media.Stream) (media.AudioNode, error) {
	if s == nil || len(s.AudioTracks()) == 0 {
		return nil, fmt.Errorf("stream source: %w: stream has no audio track", media.ErrInvalidState)
	}
	n := &node{ctx: c, kind: nodeSource, label: "stream:" + s.AudioTracks()[0].Label()}
	if err := c.add(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *audioContext) Gain(level float64) (media.AudioNode, error) {
	if level < 0 {
		return nil, fmt.Errorf("gain: %w: negative level %.2f", media.ErrNotSupported, level)
	}
	n := &node{ctx: c, kind: nodeGain, label: fmt.Sprintf("gain(%.2f)", level), level: level}
	if err := c.add(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *audioContext) StreamDestination() (media.StreamDestination, error) {
	n := &node{ctx: c, kind: nodeDestination, label: "destination"}
	if err := c.add(n); err != nil {
		return nil, err
	}
	d := &destination{node: n}
	d.track = newAudioTrack("", func() string {
		c.mu.Lock()
		defer c.mu.Unlock()
		return "mix[" + strings.Join(n.sourcesLocked(), ",") + "]"
	})
	d.stream = media.NewStream(newID(), d.track)
	c.mu.Lock()
	c.dests = append(c.dests, d)
	c.mu.Unlock()
	return d, nil
}

func (c *audioContext) Output() media.AudioNode { return c.output }

// OutputSources lists the sources audible on the live output device.
func (c *audioContext) OutputSources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.sourcesLocked()
}

// Closed reports whether Close has been called.
func (c *audioContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *audioContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, n := range c.nodes {
		n.inputs, n.outputs = nil, nil
	}
	c.output.inputs = nil
	elements, dests := c.elements, c.dests
	c.mu.Unlock()

	for _, el := range elements {
		c.p.unbind(el)
	}
	for _, d := range dests {
		d.track.Stop()
	}
	c.p.mu.Lock()
	c.p.contexts--
	c.p.mu.Unlock()
	return nil
}

// bind records el as backing a source node of c. It fails if another open
// context already holds el.
func (p *Platform) bind(el media.MediaElement, c *audioContext) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.bound[el]; ok {
		return false
	}
	p.bound[el] = c
	return true
}

func (p *Platform) unbind(el media.MediaElement) {
	p.mu.Lock()
	delete(p.bound, el)
	p.mu.Unlock()
}
