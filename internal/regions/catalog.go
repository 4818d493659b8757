// Package regions holds the static region catalog and its circular rotation order.
package regions

import (
	"math"
	"sync"
)

// Boundary is an axis-aligned box inside one world.
type Boundary struct {
	World string
	MinX  float64
	MinY  float64
	MinZ  float64
	MaxX  float64
	MaxY  float64
	MaxZ  float64
}

// NewBoundary builds a boundary from two opposite corners in any order.
func NewBoundary(world string, x1, y1, z1, x2, y2, z2 float64) Boundary {
	return Boundary{
		World: world,
		MinX:  math.Min(x1, x2),
		MinY:  math.Min(y1, y2),
		MinZ:  math.Min(z1, z2),
		MaxX:  math.Max(x1, x2),
		MaxY:  math.Max(y1, y2),
		MaxZ:  math.Max(z1, z2),
	}
}

// Contains reports whether the point lies inside the boundary, edges included.
func (b Boundary) Contains(world string, x, y, z float64) bool {
	if world == "" || world != b.World {
		return false
	}
	return x >= b.MinX && x <= b.MaxX &&
		y >= b.MinY && y <= b.MaxY &&
		z >= b.MinZ && z <= b.MaxZ
}

// Region carries presentation metadata for a region identifier.
type Region struct {
	ID          string
	DisplayName string
	Boundary    *Boundary
}

// Catalog is the ordered rotation plus region metadata. Safe for concurrent use; Replace
// swaps the whole contents on configuration reload.
type Catalog struct {
	mu       sync.RWMutex
	rotation []string
	regions  map[string]Region
}

// NewCatalog constructs a catalog from the rotation order and metadata.
func NewCatalog(rotation []string, regions []Region) *Catalog {
	catalog := &Catalog{}
	catalog.Replace(rotation, regions)
	return catalog
}

// Replace swaps the rotation and metadata.
func (c *Catalog) Replace(rotation []string, regions []Region) {
	order := make([]string, 0, len(rotation))
	order = append(order, rotation...)

	byID := make(map[string]Region, len(regions))
	for _, region := range regions {
		if region.ID == "" {
			continue
		}
		byID[region.ID] = region
	}

	c.mu.Lock()
	c.rotation = order
	c.regions = byID
	c.mu.Unlock()
}

// NextRegion returns the region after current in the rotation. An unknown current region
// yields the first region; an empty rotation yields "".
func (c *Catalog) NextRegion(current string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.rotation) == 0 {
		return ""
	}
	for index, regionID := range c.rotation {
		if regionID == current {
			return c.rotation[(index+1)%len(c.rotation)]
		}
	}
	return c.rotation[0]
}

// Contains reports whether the region is part of the rotation or has metadata.
func (c *Catalog) Contains(regionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.regions[regionID]; ok {
		return true
	}
	for _, candidate := range c.rotation {
		if candidate == regionID {
			return true
		}
	}
	return false
}

// Lookup returns the region metadata. Regions in the rotation without metadata resolve to a
// region named after their identifier.
func (c *Catalog) Lookup(regionID string) (Region, bool) {
	c.mu.RLock()
	region, ok := c.regions[regionID]
	c.mu.RUnlock()
	if ok {
		if region.DisplayName == "" {
			region.DisplayName = region.ID
		}
		return region, true
	}
	if c.Contains(regionID) {
		return Region{ID: regionID, DisplayName: regionID}, true
	}
	return Region{}, false
}

// DisplayName returns the presentation name for the region, falling back to its identifier.
func (c *Catalog) DisplayName(regionID string) string {
	region, ok := c.Lookup(regionID)
	if !ok {
		return regionID
	}
	return region.DisplayName
}

// Rotation returns a copy of the rotation order.
func (c *Catalog) Rotation() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order := make([]string, len(c.rotation))
	copy(order, c.rotation)
	return order
}

// RegionAt returns the first region, in rotation order, whose boundary contains the point.
func (c *Catalog) RegionAt(world string, x, y, z float64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, regionID := range c.rotation {
		region, ok := c.regions[regionID]
		if !ok || region.Boundary == nil {
			continue
		}
		if region.Boundary.Contains(world, x, y, z) {
			return regionID, true
		}
	}
	return "", false
}
