package settings

// TenantConfig bundles the three optional JSON-backed configuration
// stores for one tenant (spec §4.4).
type TenantConfig struct {
	Settings *Store[IndexSettings]
	Synonyms *Store[SynonymStore]
	Rules    *Store[RuleStore]
}

// NewTenantConfig wires up the three stores under dataDir/tenant.
func NewTenantConfig(dataDir, tenant string) *TenantConfig {
	return &TenantConfig{
		Settings: NewStore(dataDir, tenant, "settings", Default),
		Synonyms: NewStore(dataDir, tenant, "synonyms", func() SynonymStore { return SynonymStore{} }),
		Rules:    NewStore(dataDir, tenant, "rules", func() RuleStore { return RuleStore{} }),
	}
}

// LoadSynonyms returns the tenant's synonym store with its lookup index
// built, ready for ExpandQuery.
func (c *TenantConfig) LoadSynonyms() (SynonymStore, error) {
	syn, err := c.Synonyms.Get()
	if err != nil {
		return SynonymStore{}, err
	}
	syn.Build()
	return syn, nil
}

// InvalidateAll drops every cached value, used after recovery replay
// (which restores settings ops; synonyms/rules ops are not replayed).
func (c *TenantConfig) InvalidateAll() {
	c.Settings.Invalidate()
	c.Synonyms.Invalidate()
	c.Rules.Invalidate()
}
