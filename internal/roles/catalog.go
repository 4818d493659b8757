package roles

import (
	"sort"
	"strings"
	"sync"
)

// Definition describes a contested role and the permission group that backs it.
type Definition struct {
	ID               string
	DisplayName      string
	PermissionGroup  string
	ReputationReward int64
}

// Catalog is the reloadable set of configured roles.
type Catalog struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewCatalog constructs a catalog from definitions. Blank identifiers are ignored.
func NewCatalog(definitions []Definition) *Catalog {
	catalog := &Catalog{}
	catalog.Replace(definitions)
	return catalog
}

// Replace swaps the catalog contents.
func (c *Catalog) Replace(definitions []Definition) {
	indexed := make(map[string]Definition, len(definitions))
	for _, definition := range definitions {
		definition.ID = strings.TrimSpace(definition.ID)
		if definition.ID == "" {
			continue
		}
		if strings.TrimSpace(definition.DisplayName) == "" {
			definition.DisplayName = definition.ID
		}
		definition.PermissionGroup = strings.TrimSpace(definition.PermissionGroup)
		indexed[definition.ID] = definition
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.definitions = indexed
}

// Lookup returns the role definition.
func (c *Catalog) Lookup(roleID string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	definition, ok := c.definitions[roleID]
	return definition, ok
}

// HasRole reports whether the role is configured.
func (c *Catalog) HasRole(roleID string) bool {
	_, ok := c.Lookup(roleID)
	return ok
}

// Group returns the permission group of the role, empty when unmapped.
func (c *Catalog) Group(roleID string) string {
	definition, _ := c.Lookup(roleID)
	return definition.PermissionGroup
}

// DisplayName returns the role's display name, falling back to the identifier.
func (c *Catalog) DisplayName(roleID string) string {
	if definition, ok := c.Lookup(roleID); ok {
		return definition.DisplayName
	}
	return roleID
}

// RewardFor returns the role-specific winner bonus, zero when unset.
func (c *Catalog) RewardFor(roleID string) int64 {
	definition, _ := c.Lookup(roleID)
	return definition.ReputationReward
}

// Definitions returns every role ordered by identifier.
func (c *Catalog) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	definitions := make([]Definition, 0, len(c.definitions))
	for _, definition := range c.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].ID < definitions[j].ID
	})
	return definitions
}
