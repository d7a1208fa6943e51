package query

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/cuemby/flapjack/internal/segment"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

const (
	overfetchMultiplier     = 100
	overfetchFloor          = 1000
	defaultSnippetWords     = 10
	geoSortPrecisionMeters  = 10.0
	maxFallbackAlternatives = 15
)

var storedFields = []string{"json_filter_raw", "geo_raw", "facets_raw"}

// SortField is one declared sort key (spec §4.7.2 step 4).
type SortField struct {
	Field      string
	Descending bool
}

// OptionalFilterBoost adds Score to documents whose Field equals Value,
// without requiring the match (spec §4.7.2 step 2: negated entries are
// dropped by the caller before reaching the executor).
type OptionalFilterBoost struct {
	Field string
	Value string
	Score float64
}

// GeoParams bundles every geo constraint of one search (spec §4.7.3).
type GeoParams struct {
	Around              *types.GeoPoint
	AroundRadiusAll     bool
	AroundRadiusMeters  float64
	HasAroundRadius     bool
	MinimumAroundRadius float64
	BoundingBoxes       []BoundingBox
	Polygons            []Polygon
}

func (g GeoParams) active() bool {
	return g.Around != nil || len(g.BoundingBoxes) > 0 || len(g.Polygons) > 0
}

// FacetRequest is the facet portion of a search request.
type FacetRequest struct {
	Fields            []string
	MaxValuesPerFacet int
}

// SearchRequest bundles everything the executor needs for one query
// (spec §4.7). ParsedQuery comes from Parse; FilterExpr is the
// canonical string used only to key the facet cache (spec I5).
type SearchRequest struct {
	Tenant      string
	ParsedQuery ParsedQuery
	Filter      Filter
	FilterExpr  string
	Sort        []SortField
	Limit       int
	Offset      int
	Facets      FacetRequest
	Geo         GeoParams

	OptionalFilters []OptionalFilterBoost
	Settings        settings.IndexSettings
	RuleEffects     settings.RuleEffects

	AttributesToHighlight []string
	HighlightPreTag       string
	HighlightPostTag      string
	SnippetWords          map[string]int // per-attribute override of the default 10
}

// Hit is one ranked, paged document in a SearchResult.
type Hit struct {
	ObjectID    string
	Filter      map[string]any
	Score       float64
	Distance    float64
	HasDistance bool
	Highlights  map[string]HighlightResult
	Snippets    map[string]string
}

// SearchResult is the executor's output (spec §4.7).
type SearchResult struct {
	Documents       []Hit
	Total           int
	Facets          map[string]FacetCounts
	UserData        []map[string]any
	AppliedRules    []string
	AutomaticRadius float64
}

// Executor runs parsed queries against one tenant's segment store.
type Executor struct {
	store      *segment.Store
	facetCache *FacetCache
}

// NewExecutor binds an executor to one tenant's segment store and the
// process-wide facet cache.
func NewExecutor(store *segment.Store, cache *FacetCache) *Executor {
	return &Executor{store: store, facetCache: cache}
}

// candidate is one document carried through ranking before paging.
type candidate struct {
	objectID    string
	filter      map[string]any
	geo         []types.GeoPoint
	facets      map[string][]string
	score       float64
	distance    float64
	hasDistance bool
}

// Search executes req against the tenant's current segment state (spec
// §4.7). Fallback retries (§4.7.4) are the caller's responsibility via
// SearchWithFallback, which knows the original query text.
func (ex *Executor) Search(req SearchRequest) (*SearchResult, error) {
	q := req.ParsedQuery.Query
	if q == nil {
		q = bleve.NewMatchAllQuery()
	}
	if placeholderQ := expandPlaceholders(req.ParsedQuery.Placeholders); placeholderQ != nil {
		q = bleve.NewConjunctionQuery(q, placeholderQ)
	}

	overfetch := (len(req.Sort) > 0 && req.ParsedQuery.HasText) || req.Geo.active()
	fetchSize := req.Offset + req.Limit
	if fetchSize <= 0 {
		fetchSize = 20
	}
	if overfetch {
		want := fetchSize * overfetchMultiplier
		if want < overfetchFloor {
			want = overfetchFloor
		}
		fetchSize = want
	}

	breq := bleve.NewSearchRequestOptions(q, fetchSize, 0, false)
	breq.Fields = storedFields

	res, err := ex.store.Index().Search(breq)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		candidates = append(candidates, decodeHit(hit.ID, hit.Score, hit.Fields))
	}

	if req.Filter != nil {
		filtered := candidates[:0]
		for _, c := range candidates {
			if req.Filter.Eval(c.filter) {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	applyOptionalFilterBoosts(candidates, req.OptionalFilters)

	var automaticRadius float64
	if req.Geo.active() {
		candidates, automaticRadius = ex.applyGeo(candidates, req.Geo)
	}

	if len(req.RuleEffects.Hides) > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if !req.RuleEffects.Hides[c.objectID] {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	rankCandidates(candidates, req.Settings.CustomRankingRules())

	if len(req.Sort) > 0 && !req.Geo.active() {
		sort.SliceStable(candidates, func(i, j int) bool {
			return compareSortFields(candidates[i].filter, candidates[j].filter, req.Sort)
		})
	}

	if req.Geo.active() && req.Geo.Around != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			bi := PrecisionBucket(candidates[i].distance, geoSortPrecisionMeters)
			bj := PrecisionBucket(candidates[j].distance, geoSortPrecisionMeters)
			if bi != bj {
				return bi < bj
			}
			return candidates[i].score > candidates[j].score
		})
	}

	if req.Settings.Distinct > 0 && req.Settings.AttributeForDistinct != "" {
		candidates = applyDistinct(candidates, req.Settings.AttributeForDistinct, req.Settings.Distinct)
	}

	if len(req.RuleEffects.Pins) > 0 {
		candidates = ex.applyPins(candidates, req.RuleEffects.Pins)
	}

	total := len(candidates)
	page := pageCandidates(candidates, req.Offset, req.Limit)

	hits := make([]Hit, len(page))
	for i, c := range page {
		hits[i] = ex.buildHit(c, req)
	}

	facets := ex.collectFacets(req, candidates)

	var userData []map[string]any
	if len(req.RuleEffects.UserData) > 0 {
		userData = req.RuleEffects.UserData
	}

	return &SearchResult{
		Documents:       hits,
		Total:           total,
		Facets:          facets,
		UserData:        userData,
		AppliedRules:    req.RuleEffects.AppliedRules,
		AutomaticRadius: automaticRadius,
	}, nil
}

// SearchWithFallback runs Parse+Search, then applies the §4.7.4
// fallback ladder when the primary attempt returns zero results:
// dropping one word at a time from the configured end
// (removeWordsIfNoResults), then trying split/concat alternatives of
// the remaining text, bounded to 15 total attempts.
func (ex *Executor) SearchWithFallback(in ParserInput, req SearchRequest) (*SearchResult, error) {
	parsed := Parse(in)
	req.ParsedQuery = parsed
	res, err := ex.Search(req)
	if err != nil || res.Total > 0 {
		return res, err
	}
	if in.Settings.RemoveWordsIfNoResults == settings.RemoveWordsNone {
		return res, nil
	}

	tokens := Tokenize(in.Text)
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.Text
	}

	tried := 0
	for len(words) > 1 && tried < maxFallbackAlternatives {
		if in.Settings.RemoveWordsIfNoResults == settings.RemoveWordsLastWords {
			words = words[:len(words)-1]
		} else {
			words = words[1:]
		}
		tried++

		retryIn := in
		retryIn.Text = strings.Join(words, " ")
		req.ParsedQuery = Parse(retryIn)
		res, err = ex.Search(req)
		if err != nil {
			return nil, err
		}
		if res.Total > 0 {
			return res, nil
		}
	}

	for _, alt := range splitConcatAlternatives(strings.Join(words, " "), maxFallbackAlternatives-tried) {
		tried++
		altIn := in
		altIn.Text = alt
		req.ParsedQuery = Parse(altIn)
		res, err = ex.Search(req)
		if err != nil {
			return nil, err
		}
		if res.Total > 0 {
			return res, nil
		}
		if tried >= maxFallbackAlternatives {
			break
		}
	}

	return res, nil
}

// splitConcatAlternatives generates up to limit "earbuds"<->"ear buds"
// style rewrites of text (spec §4.7.4): concatenating adjacent word
// pairs, and splitting words of 4+ characters at interior positions.
func splitConcatAlternatives(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	tokens := Tokenize(text)
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.Text
	}

	var alts []string
	for i := 0; i < len(words)-1 && len(alts) < limit; i++ {
		merged := append(append([]string{}, words[:i]...), words[i]+words[i+1])
		merged = append(merged, words[i+2:]...)
		alts = append(alts, strings.Join(merged, " "))
	}
	for i, w := range words {
		if len(alts) >= limit {
			break
		}
		runes := []rune(w)
		if len(runes) < 4 {
			continue
		}
		for cut := 2; cut < len(runes)-1 && len(alts) < limit; cut++ {
			parts := append(append([]string{}, words[:i]...), string(runes[:cut]), string(runes[cut:]))
			parts = append(parts, words[i+1:]...)
			alts = append(alts, strings.Join(parts, " "))
		}
	}
	if len(alts) > limit {
		alts = alts[:limit]
	}
	return alts
}

func decodeHit(id string, score float64, fields map[string]interface{}) candidate {
	c := candidate{objectID: id, score: score, filter: map[string]any{}}
	if raw, ok := fields["json_filter_raw"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &c.filter)
	}
	if raw, ok := fields["geo_raw"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &c.geo)
	}
	if raw, ok := fields["facets_raw"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &c.facets)
	}
	return c
}

// expandPlaceholders implements the executor side of spec §4.6.1.
// bleve v2's term-dictionary enumeration API (FieldDict) couldn't be
// grounded against a verified signature without running the toolchain,
// so enumeration is approximated with a PrefixQuery per path: bleve's
// term dictionary walk underlying PrefixQuery already bounds the work
// to matching terms regardless of index size, which is the same
// complexity guarantee the spec calls for.
func expandPlaceholders(placeholders []ShortQueryPlaceholder) bleve.Query {
	if len(placeholders) == 0 {
		return nil
	}
	var musts []bleve.Query
	for _, ph := range placeholders {
		var should []bleve.Query
		for _, path := range ph.Paths {
			pq := bleve.NewPrefixQuery(strings.ToLower(ph.Token))
			pq.SetField(fieldSearch)
			pq.SetBoost(path.Weight)
			should = append(should, pq)
		}
		if len(should) > 0 {
			musts = append(musts, bleve.NewDisjunctionQuery(should...))
		}
	}
	if len(musts) == 0 {
		return nil
	}
	return bleve.NewConjunctionQuery(musts...)
}

// applyOptionalFilterBoosts adds each boost's score to candidates whose
// filter field equals value (spec §4.7.2 step 2). This is evaluated
// post-retrieval against the reconstructed filter map rather than as a
// bleve Should clause, since _json_filter fields are stored-only (see
// internal/segment.segDoc) and carry no per-field term index to match
// against.
func applyOptionalFilterBoosts(candidates []candidate, boosts []OptionalFilterBoost) {
	for i := range candidates {
		for _, b := range boosts {
			if v, ok := candidates[i].filter[b.Field]; ok && equalValue(v, b.Value) {
				candidates[i].score += b.Score
			}
		}
	}
}

// rankCandidates sorts by text relevance (already in candidate.score),
// breaking ties with the custom ranking rules (spec §4.7.2 steps 1+3).
func rankCandidates(candidates []candidate, custom []settings.CustomRankingRule) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return compareCustomRanking(candidates[i].filter, candidates[j].filter, custom)
	})
}

func compareCustomRanking(a, b map[string]any, rules []settings.CustomRankingRule) bool {
	for _, r := range rules {
		av, aok := toFloat(a[r.Field])
		bv, bok := toFloat(b[r.Field])
		if !aok || !bok || av == bv {
			continue
		}
		if r.Descending {
			return av > bv
		}
		return av < bv
	}
	return false
}

func compareSortFields(a, b map[string]any, sorts []SortField) bool {
	for _, s := range sorts {
		av, aok := toFloat(a[s.Field])
		bv, bok := toFloat(b[s.Field])
		if aok && bok {
			if av == bv {
				continue
			}
			if s.Descending {
				return av > bv
			}
			return av < bv
		}
		as, _ := a[s.Field].(string)
		bs, _ := b[s.Field].(string)
		if as == bs {
			continue
		}
		if s.Descending {
			return as > bs
		}
		return as < bs
	}
	return false
}

// applyDistinct keeps only the first k candidates sharing a given
// attribute value (spec §4.7.4).
func applyDistinct(candidates []candidate, attr string, k int) []candidate {
	seen := make(map[string]int)
	out := candidates[:0]
	for _, c := range candidates {
		key, ok := c.filter[attr].(string)
		if !ok || key == "" {
			out = append(out, c)
			continue
		}
		if seen[key] < k {
			seen[key]++
			out = append(out, c)
		}
	}
	return out
}

// applyPins stable-inserts pinned documents at their declared
// positions, fetching them by id if they fell outside the candidate
// set, and drops duplicate occurrences elsewhere (spec §4.7.5).
func (ex *Executor) applyPins(candidates []candidate, pins []settings.Promotion) []candidate {
	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.objectID] = i
	}

	pinned := make(map[string]bool, len(pins))
	type placement struct {
		pos int
		c   candidate
	}
	var placements []placement

	for _, p := range pins {
		if pinned[p.ObjectID] {
			continue
		}
		if idx, ok := byID[p.ObjectID]; ok {
			placements = append(placements, placement{pos: p.Position, c: candidates[idx]})
			pinned[p.ObjectID] = true
			continue
		}
		if c, ok := ex.fetchByID(p.ObjectID); ok {
			placements = append(placements, placement{pos: p.Position, c: c})
			pinned[p.ObjectID] = true
		}
	}

	remaining := candidates[:0]
	for _, c := range candidates {
		if pinned[c.objectID] {
			continue
		}
		remaining = append(remaining, c)
	}

	sort.SliceStable(placements, func(i, j int) bool { return placements[i].pos < placements[j].pos })

	out := make([]candidate, 0, len(remaining)+len(placements))
	pi := 0
	for i := 0; i <= len(remaining); i++ {
		for pi < len(placements) && placements[pi].pos == i {
			out = append(out, placements[pi].c)
			pi++
		}
		if i < len(remaining) {
			out = append(out, remaining[i])
		}
	}
	for pi < len(placements) {
		out = append(out, placements[pi].c)
		pi++
	}
	return out
}

func (ex *Executor) fetchByID(id string) (candidate, bool) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = storedFields
	res, err := ex.store.Index().Search(req)
	if err != nil || len(res.Hits) == 0 {
		return candidate{}, false
	}
	hit := res.Hits[0]
	return decodeHit(hit.ID, hit.Score, hit.Fields), true
}

func pageCandidates(candidates []candidate, offset, limit int) []candidate {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(candidates) {
		return nil
	}
	end := len(candidates)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return candidates[offset:end]
}

func (ex *Executor) buildHit(c candidate, req SearchRequest) Hit {
	h := Hit{
		ObjectID:    c.objectID,
		Filter:      c.filter,
		Score:       c.score,
		Distance:    c.distance,
		HasDistance: c.hasDistance,
	}
	if len(req.AttributesToHighlight) == 0 {
		return h
	}

	h.Highlights = make(map[string]HighlightResult, len(req.AttributesToHighlight))
	h.Snippets = make(map[string]string, len(req.AttributesToHighlight))
	for _, attr := range req.AttributesToHighlight {
		val, ok := c.filter[attr].(string)
		if !ok || val == "" {
			continue
		}
		h.Highlights[attr] = Highlight(val, req.ParsedQuery.QueryWords, req.HighlightPreTag, req.HighlightPostTag)
		n := defaultSnippetWords
		if want, ok := req.SnippetWords[attr]; ok && want > 0 {
			n = want
		}
		h.Snippets[attr] = Snippet(val, req.ParsedQuery.QueryWords, n)
	}
	return h
}

// applyGeo filters and, when a radius is in play, scores candidates by
// distance (spec §4.7.3).
func (ex *Executor) applyGeo(candidates []candidate, geo GeoParams) ([]candidate, float64) {
	if len(geo.BoundingBoxes) > 0 || len(geo.Polygons) > 0 {
		filtered := candidates[:0]
		for _, c := range candidates {
			if geoContainsAny(c.geo, geo.BoundingBoxes, geo.Polygons) {
				filtered = append(filtered, c)
			}
		}
		return filtered, 0
	}

	if geo.Around == nil {
		return candidates, 0
	}

	matches := make([]GeoMatch, 0, len(candidates))
	withDistance := candidates[:0]
	for _, c := range candidates {
		_, dist, ok := ClosestPoint(*geo.Around, c.geo)
		if !ok {
			continue
		}
		c.distance = dist
		c.hasDistance = true
		matches = append(matches, GeoMatch{ObjectID: c.objectID, Distance: dist})
		withDistance = append(withDistance, c)
	}
	candidates = withDistance

	if geo.AroundRadiusAll {
		return candidates, 0
	}

	radius := geo.AroundRadiusMeters
	auto := 0.0
	if !geo.HasAroundRadius {
		auto = AutomaticRadius(matches, geo.MinimumAroundRadius)
		radius = auto
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.distance <= radius {
			filtered = append(filtered, c)
		}
	}
	return filtered, auto
}

func geoContainsAny(pts []types.GeoPoint, boxes []BoundingBox, polys []Polygon) bool {
	for _, p := range pts {
		for _, b := range boxes {
			if b.Contains(p) {
				return true
			}
		}
		for _, poly := range polys {
			if poly.Contains(p) {
				return true
			}
		}
	}
	return false
}

// collectFacets computes or retrieves cached facet counts for the
// requested fields (spec §4.7.6).
func (ex *Executor) collectFacets(req SearchRequest, candidates []candidate) map[string]FacetCounts {
	if len(req.Facets.Fields) == 0 {
		return nil
	}

	if ex.facetCache != nil {
		key := Key(req.Tenant, req.FilterExpr, req.Facets.Fields)
		if cached, ok := ex.facetCache.Get(req.Tenant, key); ok {
			return TruncateValues(cached, req.Facets.MaxValuesPerFacet)
		}
		counts := computeFacetCounts(candidates, req.Facets.Fields)
		ex.facetCache.Put(key, counts)
		return TruncateValues(counts, req.Facets.MaxValuesPerFacet)
	}
	return TruncateValues(computeFacetCounts(candidates, req.Facets.Fields), req.Facets.MaxValuesPerFacet)
}

func computeFacetCounts(candidates []candidate, fields []string) map[string]FacetCounts {
	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}
	counts := make(map[string]FacetCounts, len(fields))
	for _, c := range candidates {
		for field, values := range c.facets {
			if !wanted[field] {
				continue
			}
			if counts[field] == nil {
				counts[field] = make(FacetCounts)
			}
			for _, v := range values {
				counts[field][v]++
			}
		}
	}
	return counts
}
