// Region partition: splits the grid between monetary regions.
package world

import "fmt"

// RegionAnchor seeds a region at a coordinate; every cell joins its nearest anchor.
type RegionAnchor struct {
	Region RegionID
	Coord  HexCoord
}

// AssignRegions partitions every cell to the nearest anchor by hex distance.
// Ties go to the anchor listed first. It fails if an anchor ends up with no cells.
func AssignRegions(m *Map, anchors []RegionAnchor) error {
	if len(anchors) == 0 {
		return fmt.Errorf("assign regions: no anchors")
	}

	counts := make(map[RegionID]int, len(anchors))
	for i := range m.cells {
		c := &m.cells[i]
		best := 0
		bestDist := Distance(c.Coord, anchors[0].Coord)
		for j := 1; j < len(anchors); j++ {
			if d := Distance(c.Coord, anchors[j].Coord); d < bestDist {
				best, bestDist = j, d
			}
		}
		c.Region = anchors[best].Region
		counts[c.Region]++
	}

	for _, a := range anchors {
		if counts[a.Region] == 0 {
			return fmt.Errorf("assign regions: region %q has no cells", a.Region)
		}
	}
	return nil
}

// RegionCounts returns the number of cells per region.
func RegionCounts(m *Map) map[RegionID]int {
	counts := make(map[RegionID]int)
	for _, c := range m.cells {
		counts[c.Region]++
	}
	return counts
}
