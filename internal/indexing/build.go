package indexing

// BuildOptions tunes index construction
type BuildOptions struct {
	// MaxDescription caps record descriptions in characters; <= 0 keeps them whole
	MaxDescription int
}

// DefaultBuildOptions returns the options used for the published artifact
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{MaxDescription: MaxDescriptionChars}
}

// NormalizeEntries maps source entries of one kind to records. Names are
// copied verbatim; descriptions are rendered to plain text then truncated.
func NormalizeEntries(kind Kind, entries []DocEntry, opts BuildOptions) []DocRecord {
	records := make([]DocRecord, 0, len(entries))
	for _, e := range entries {
		desc := RenderPlainText(e.Desc)
		if opts.MaxDescription > 0 {
			desc = Truncate(desc, opts.MaxDescription)
		}
		records = append(records, DocRecord{
			Kind: kind,
			Name: e.Name,
			Desc: desc,
		})
	}
	return records
}

// BuildIndex flattens the three sources in config, var, lua order and
// builds the token index over name and desc. Empty sources are fine.
func BuildIndex(src Sources, opts BuildOptions) *SearchIndex {
	list := make([]DocRecord, 0, len(src.Config)+len(src.Vars)+len(src.Lua))
	list = append(list, NormalizeEntries(KindConfig, src.Config, opts)...)
	list = append(list, NormalizeEntries(KindVar, src.Vars, opts)...)
	list = append(list, NormalizeEntries(KindLua, src.Lua, opts)...)

	return &SearchIndex{
		List:  list,
		Index: BuildTokenIndex(list),
	}
}

// BuildTokenIndex tokenizes every record's keys with equal weighting
func BuildTokenIndex(list []DocRecord) TokenIndex {
	keys := make([]string, len(IndexKeys))
	copy(keys, IndexKeys)

	records := make([]TokenRecord, 0, len(list))
	for i, rec := range list {
		records = append(records, TokenRecord{
			Index: i,
			Fields: []TokenField{
				TokenizeField(rec.Name),
				TokenizeField(rec.Desc),
			},
		})
	}

	return TokenIndex{Keys: keys, Records: records}
}

// CountByKind tallies the records of each kind
func (idx *SearchIndex) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, k := range Kinds {
		counts[k] = 0
	}
	for _, rec := range idx.List {
		counts[rec.Kind]++
	}
	return counts
}
