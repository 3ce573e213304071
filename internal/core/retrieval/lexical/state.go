package lexical

import (
	"fmt"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

// State is the serializable form of an Index. IDF values are derived, so
// they are recomputed on load with the same arithmetic as Build.
type State struct {
	Params    Params               `json:"params"`
	IDs       []string             `json:"ids"`
	DocLens   []int                `json:"doc_lens"`
	AvgDocLen float64              `json:"avg_doc_len"`
	Postings  map[string][]Posting `json:"postings"`
}

func (idx *Index) State() State {
	return State{
		Params:    idx.params,
		IDs:       idx.ids,
		DocLens:   idx.docLens,
		AvgDocLen: idx.avgDocLen,
		Postings:  idx.postings,
	}
}

func FromState(state State, analyzer text.Analyzer) (*Index, error) {
	if len(state.IDs) != len(state.DocLens) {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "lexical restore",
			fmt.Errorf("ids/doc_lens length mismatch: %d != %d", len(state.IDs), len(state.DocLens)))
	}
	for term, list := range state.Postings {
		for _, p := range list {
			if p.Doc < 0 || p.Doc >= len(state.IDs) {
				return nil, domain.WrapError(domain.ErrInvalidConfig, "lexical restore",
					fmt.Errorf("posting for %q references chunk %d out of range", term, p.Doc))
			}
		}
	}
	postings := state.Postings
	if postings == nil {
		postings = map[string][]Posting{}
	}
	return newIndex(state.Params.Normalize(), analyzer, state.IDs, state.DocLens, state.AvgDocLen, postings), nil
}
