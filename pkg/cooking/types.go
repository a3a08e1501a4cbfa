// Package cooking contains the core types for the recipe database and query server.
package cooking

// ============================================
// CATALOG TYPES
// ============================================

// GroupID identifies an ingredient group. Zero is the empty slot.
type GroupID uint16

// NoGroup is the sentinel group used for unused slots.
const NoGroup GroupID = 0

// Tag is an interned catalog tag.
type Tag uint8

// MaxTags is the number of distinct tags a catalog may declare.
const MaxTags = 128

// TagSet is a fixed-size bitset of tags.
type TagSet [MaxTags / 64]uint64

// Add sets t in the set.
func (s *TagSet) Add(t Tag) {
	s[t/64] |= 1 << (t % 64)
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	return s[t/64]&(1<<(t%64)) != 0
}

// Group is one equivalence class of interchangeable ingredients. All
// cooking-relevant attributes come from the group's canonical ingredient.
type Group struct {
	ID        GroupID  `json:"id"`
	Name      string   `json:"name"`
	Actors    []string `json:"actors"`
	BuyPrice  uint32   `json:"buy_price"`
	SellPrice uint32   `json:"sell_price"`
	HP        int32    `json:"hp"`
	BoostHP   int32    `json:"boost_hp"`
	BoostCrit int32    `json:"boost_crit"`
	Effect    Effect   `json:"effect"`
	Tags      TagSet   `json:"-"`
}

// Rule maps a pattern of ingredients to a cooked output.
// Each entry of Actors and Tags is a list of alternatives; an empty entry is skipped.
type Rule struct {
	Output     string      `json:"output"`
	Actors     [][]GroupID `json:"actors,omitempty"`
	Tags       [][]Tag     `json:"tags,omitempty"`
	HeartBonus int32       `json:"hb,omitempty"`

	// Unmatchable marks a rule with a matcher that can never be satisfied.
	Unmatchable bool `json:"unmatchable,omitempty"`
}

// Output names with special handling during resolution.
const (
	FairyTonic   = "Fairy Tonic"
	DubiousFood  = "Dubious Food"
	RockHardFood = "Rock-Hard Food"
	Elixir       = "Elixir"
)

// Value limits.
const (
	MaxValue     = 120
	MaxCrit      = 100
	CritBonus    = 12
	MinDubious   = 4
	MinPrice     = 2
	NumIngrSlots = 5
)

// ============================================
// RESULT TYPES
// ============================================

// ResolvedRecipe is the cooked result of one ingredient list.
type ResolvedRecipe struct {
	Name string `json:"name"`
	// Value is the stored heart value before any random crit.
	Value int32 `json:"value"`
	// ValueWithCrit is the heart value if the cook crits.
	ValueWithCrit int32  `json:"value_with_crit"`
	Crit          int32  `json:"crit"`
	Effect        Effect `json:"effect"`
	Price         uint32 `json:"price"`
	CritDiffers   bool   `json:"crit_differs"`
}

// Filter selects database records.
type Filter struct {
	MinValue         int               `json:"min_value"`
	MaxValue         int               `json:"max_value"`
	IncludesModifier WeaponModifierSet `json:"includes_modifier,omitempty"`
	ExcludesModifier WeaponModifierSet `json:"excludes_modifier,omitempty"`
	// IncludeCritRNG also accepts records that can reach MinValue with a crit.
	IncludeCritRNG bool `json:"include_crit_rng,omitempty"`
}

// AllRecords returns a filter that matches every valid record.
func AllRecords() Filter {
	return Filter{
		MinValue:       0,
		MaxValue:       MaxValue,
		IncludeCritRNG: true,
	}
}

// ChunkIndex summarizes one database chunk.
type ChunkIndex struct {
	Chunk               uint32            `json:"chunk"`
	MinValue            int               `json:"min_value"`
	MaxValue            int               `json:"max_value"`
	MaxValueCrit        int               `json:"max_value_crit"`
	IncludesModifier    WeaponModifierSet `json:"includes_modifier"`
	AllIncludesModifier WeaponModifierSet `json:"all_includes_modifier"`
	MinPrice            uint32            `json:"min_price"`
	MaxPrice            uint32            `json:"max_price"`
	SHA256              string            `json:"sha256"`
}

// BuildInfo describes one database build run.
type BuildInfo struct {
	ID            string `json:"id"`
	CatalogDigest string `json:"catalog_digest"`
	NumGroups     int    `json:"num_groups"`
	ChunkSize     uint32 `json:"chunk_size"`
	ChunkCount    uint32 `json:"chunk_count"`
	TotalRecords  uint64 `json:"total_records"`
	Workers       int    `json:"workers"`
	Status        string `json:"status"`
	CritSHA256    string `json:"crit_sha256,omitempty"`
	FailedChunks  int    `json:"failed_chunks"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
}

// Build statuses.
const (
	BuildRunning  = "running"
	BuildComplete = "complete"
	BuildFailed   = "failed"
)

// ============================================
// TOOL REQUEST/RESPONSE TYPES
// ============================================

// CookRequest is the input for the cook tool.
type CookRequest struct {
	Ingredients []string `json:"ingredients"`
}

// CookResponse is the output of the cook tool.
type CookResponse struct {
	Ingredients []string       `json:"ingredients"`
	Rank        uint64         `json:"rank"`
	Recipe      ResolvedRecipe `json:"recipe"`
	Record      uint16         `json:"record"`
	Modifiers   []string       `json:"modifiers,omitempty"`
}

// RecordLookupRequest is the input for the record_lookup tool.
// Exactly one of Rank or Ingredients must be set.
type RecordLookupRequest struct {
	Rank        *uint64  `json:"rank,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
}

// RecordLookupResponse is the output of the record_lookup tool.
type RecordLookupResponse struct {
	Rank        uint64   `json:"rank"`
	Chunk       uint32   `json:"chunk"`
	Ingredients []string `json:"ingredients"`
	Record      uint16   `json:"record"`
	Value       int      `json:"value"`
	Price       int      `json:"price"`
	CritDiffers bool     `json:"crit_differs"`
	Modifiers   []string `json:"modifiers,omitempty"`
	// Matches reports whether the stored record agrees with a fresh resolve.
	Matches bool `json:"matches"`
}

// SlotMode constrains the groups chosen for a multi-count slot.
type SlotMode string

const (
	SlotAny       SlotMode = ""
	SlotSame      SlotMode = "same"
	SlotDifferent SlotMode = "different"
)

// SlotConstraint is one entry of a partial recipe: Count slots, each filled
// by one of Ingredients.
type SlotConstraint struct {
	Ingredients []string `json:"ingredients"`
	Count       int      `json:"count,omitempty"`
	Mode        SlotMode `json:"mode,omitempty"`
}

// FindCombinationsRequest is the input for the find_combinations tool.
type FindCombinationsRequest struct {
	Slots  []SlotConstraint `json:"slots"`
	Filter *Filter          `json:"filter,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// CombinationMatch is one resolved combination.
type CombinationMatch struct {
	Rank        uint64         `json:"rank"`
	Ingredients []string       `json:"ingredients"`
	Recipe      ResolvedRecipe `json:"recipe"`
	Modifiers   []string       `json:"modifiers,omitempty"`
}

// FindCombinationsResponse is the output of the find_combinations tool.
type FindCombinationsResponse struct {
	Searched int                `json:"searched"`
	Matched  int                `json:"matched"`
	Results  []CombinationMatch `json:"results"`
}

// SearchRecordsRequest is the input for the search_records tool.
type SearchRecordsRequest struct {
	Filter Filter `json:"filter"`
	// StartRank resumes a previous search.
	StartRank uint64 `json:"start_rank,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// RecordMatch is one stored record returned by a database search.
type RecordMatch struct {
	Rank        uint64   `json:"rank"`
	Ingredients []string `json:"ingredients"`
	Value       int      `json:"value"`
	Price       int      `json:"price"`
	CritDiffers bool     `json:"crit_differs"`
	Modifiers   []string `json:"modifiers,omitempty"`
}

// SearchRecordsResponse is the output of the search_records tool.
type SearchRecordsResponse struct {
	Results       []RecordMatch `json:"results"`
	ChunksScanned int           `json:"chunks_scanned"`
	ChunksSkipped int           `json:"chunks_skipped"`
	// NextRank is set when more records may match; pass it as StartRank.
	NextRank *uint64 `json:"next_rank,omitempty"`
}

// DatabaseInfoRequest is the input for the database_info tool.
type DatabaseInfoRequest struct {
	IncludeChunks bool `json:"include_chunks,omitempty"`
}

// DatabaseInfoResponse is the output of the database_info tool.
type DatabaseInfoResponse struct {
	NumGroups     int          `json:"num_groups"`
	TotalRecords  uint64       `json:"total_records"`
	CatalogDigest string       `json:"catalog_digest"`
	ChunkSize     uint32       `json:"chunk_size,omitempty"`
	ChunkCount    uint32       `json:"chunk_count,omitempty"`
	IndexedChunks int          `json:"indexed_chunks"`
	LastBuild     *BuildInfo   `json:"last_build,omitempty"`
	Chunks        []ChunkIndex `json:"chunks,omitempty"`
}
