// Package samplertree binds one reservoir sampler to one tree, the unit the
// forest fans its updates out across. It owns the decision of whether an
// incoming point actually changes the tree, and reports which PointRefs
// were added and evicted so the forest can reconcile the shared point
// store's reference counts.
package samplertree

import (
	"github.com/hed1ad/rcforest/pkg/rcf/pointstore"
	"github.com/hed1ad/rcforest/pkg/rcf/sampler"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
)

// NoRef marks the absence of an added/deleted PointRef in an UpdateResult.
const NoRef = pointstore.NoneRef

// UpdateResult reports the bookkeeping the forest must apply to the shared
// point store after one SamplerTree's Update.
type UpdateResult struct {
	AddedRef   int
	DeletedRef int
}

// SamplerTree is one sampler bound to one tree.
type SamplerTree struct {
	Sampler *sampler.Sampler
	Tree    *tree.Tree
}

// New binds a sampler and tree that must already share the same capacity
// and point accessor.
func New(s *sampler.Sampler, t *tree.Tree) *SamplerTree {
	return &SamplerTree{Sampler: s, Tree: t}
}

// Update offers ref to the sampler; if accepted, the tree is updated to
// match (deleting any evicted ref first, then inserting the new one), and
// the refs the forest needs to Inc/Dec on the shared point store are
// returned. A no-op update returns NoRef for both fields.
func (st *SamplerTree) Update(ref int) (UpdateResult, error) {
	state := st.Sampler.Sample(ref)
	if !state.Accepted {
		return UpdateResult{AddedRef: NoRef, DeletedRef: NoRef}, nil
	}

	deleted := NoRef
	if state.EvictionOccurred {
		if err := st.Tree.Delete(state.EvictedPointRef); err != nil {
			return UpdateResult{}, err
		}
		deleted = state.EvictedPointRef
	}
	if err := st.Tree.Insert(ref); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{AddedRef: ref, DeletedRef: deleted}, nil
}
