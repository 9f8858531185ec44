package world

import (
	"fmt"
	"math"
	"sort"
)

// RegionID identifies a geographic/monetary region ("US", "JP").
type RegionID string

// Cell is a single tile on the resource map.
type Cell struct {
	ID       CellID   `json:"id"`
	Coord    HexCoord `json:"coord"`
	Region   RegionID `json:"region"`
	Resource float64  `json:"resource"` // Current level, never negative
	Capacity float64  `json:"capacity"` // Endowment the cell regrows toward
}

// Map holds the complete hex grid. Cells live in an arena indexed by CellID.
type Map struct {
	Radius int `json:"radius"`

	cells     []Cell
	index     map[HexCoord]CellID
	occupants map[CellID]map[OccupantID]struct{}
	neighbors [][]CellID
	regen     float64
}

// NewMap creates an empty map with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewMap(radius int) *Map {
	return &Map{
		Radius:    radius,
		index:     make(map[HexCoord]CellID),
		occupants: make(map[CellID]map[OccupantID]struct{}),
	}
}

// add appends a cell and returns its id. Neighbor lists are rebuilt lazily.
func (m *Map) add(coord HexCoord, capacity float64) CellID {
	if capacity < 0 || math.IsNaN(capacity) {
		capacity = 0
	}
	id := CellID(len(m.cells))
	m.cells = append(m.cells, Cell{ID: id, Coord: coord, Resource: capacity, Capacity: capacity})
	m.index[coord] = id
	m.neighbors = nil
	return id
}

// Valid reports whether id refers to a cell on this map.
func (m *Map) Valid(id CellID) bool {
	return id >= 0 && int(id) < len(m.cells)
}

// Lookup returns the cell id at a coordinate.
func (m *Map) Lookup(coord HexCoord) (CellID, bool) {
	id, ok := m.index[coord]
	return id, ok
}

// Cell returns a copy of the cell.
func (m *Map) Cell(id CellID) (Cell, bool) {
	if !m.Valid(id) {
		return Cell{}, false
	}
	return m.cells[id], true
}

// RegionOf returns the region a cell belongs to ("" for unknown cells).
func (m *Map) RegionOf(id CellID) RegionID {
	if !m.Valid(id) {
		return ""
	}
	return m.cells[id].Region
}

// ResourceAt returns the current resource level of a cell, 0 for unknown cells.
func (m *Map) ResourceAt(id CellID) float64 {
	if !m.Valid(id) {
		return 0
	}
	return m.cells[id].Resource
}

// Neighbors returns the in-bounds neighbors of a cell in ascending id order.
func (m *Map) Neighbors(id CellID) []CellID {
	if !m.Valid(id) {
		return nil
	}
	if m.neighbors == nil {
		m.buildNeighbors()
	}
	return m.neighbors[id]
}

func (m *Map) buildNeighbors() {
	m.neighbors = make([][]CellID, len(m.cells))
	for i, c := range m.cells {
		var ns []CellID
		for _, n := range c.Coord.Neighbors() {
			if nid, ok := m.index[n]; ok {
				ns = append(ns, nid)
			}
		}
		sort.Slice(ns, func(a, b int) bool { return ns[a] < ns[b] })
		m.neighbors[i] = ns
	}
}

// ApplyConsumption removes up to amount from the cell and returns what was
// actually consumed. Levels clamp at zero; bad amounts consume nothing.
func (m *Map) ApplyConsumption(id CellID, amount float64) float64 {
	if !m.Valid(id) || !(amount > 0) {
		return 0
	}
	c := &m.cells[id]
	if amount > c.Resource {
		amount = c.Resource
	}
	c.Resource -= amount
	if c.Resource < 0 {
		c.Resource = 0
	}
	return amount
}

// SetRegen sets the fraction of the gap to capacity recovered per Replenish call.
func (m *Map) SetRegen(rate float64) {
	m.regen = clamp01(rate)
}

// Replenish regrows every cell toward its capacity.
func (m *Map) Replenish() {
	if m.regen == 0 {
		return
	}
	for i := range m.cells {
		c := &m.cells[i]
		gap := c.Capacity - c.Resource
		if gap <= 0 {
			continue
		}
		c.Resource += gap * m.regen
		if c.Resource > c.Capacity {
			c.Resource = c.Capacity
		}
	}
}

// OccupantID identifies an agent standing on a cell.
type OccupantID uint64

// Occupy moves an occupant from one cell to another. Use NoCell as from for a
// fresh placement.
func (m *Map) Occupy(id OccupantID, from, to CellID) {
	if set, ok := m.occupants[from]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.occupants, from)
		}
	}
	if m.Valid(to) {
		set, ok := m.occupants[to]
		if !ok {
			set = make(map[OccupantID]struct{})
			m.occupants[to] = set
		}
		set[id] = struct{}{}
	}
}

// Occupants returns how many agents currently stand on a cell.
func (m *Map) Occupants(id CellID) int {
	return len(m.occupants[id])
}

// OccupantIDs returns the agents standing on a cell, ascending.
func (m *Map) OccupantIDs(id CellID) []OccupantID {
	set := m.occupants[id]
	out := make([]OccupantID, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CellsIn returns the ids of all cells in a region, ascending.
func (m *Map) CellsIn(region RegionID) []CellID {
	var ids []CellID
	for _, c := range m.cells {
		if c.Region == region {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Cells returns a copy of every cell, in id order.
func (m *Map) Cells() []Cell {
	out := make([]Cell, len(m.cells))
	copy(out, m.cells)
	return out
}

// TotalResource returns the sum of all cell resource levels.
func (m *Map) TotalResource() float64 {
	total := 0.0
	for _, c := range m.cells {
		total += c.Resource
	}
	return total
}

// MeanResource returns the average cell resource level.
func (m *Map) MeanResource() float64 {
	if len(m.cells) == 0 {
		return 0
	}
	return m.TotalResource() / float64(len(m.cells))
}

// CellCount returns the total number of cells in the map.
func (m *Map) CellCount() int {
	return len(m.cells)
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, cells=%d)", m.Radius, m.CellCount())
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
