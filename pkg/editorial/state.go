package editorial

import "fmt"

var storedStateLabels = map[StoredState]EffectiveState{
	StateSubmitted:          EffectiveSubmitted,
	StateArchived:           EffectiveArchived,
	StateMockup:             EffectiveMockup,
	StatePublicationPending: EffectivePublication,
}

// ResolveState computes the effective lifecycle state of a post from its
// stored state and its publication set. A post is published when any of its
// publications is activated and carries a publish time; whether that time is
// in the past does not matter. Otherwise the stored state maps directly to
// its label, and a stored value outside the known enum is a data integrity
// failure rather than a default.
//
// Pure function over already-loaded rows; it never touches storage.
func ResolveState(post *Post, publications []*Publication) (EffectiveState, error) {
	for _, pub := range publications {
		if pub.IsPublished && pub.PublishAt != nil {
			return EffectivePublished, nil
		}
	}

	label, ok := storedStateLabels[post.StateID]
	if !ok {
		return "", fmt.Errorf("%w: post %s has unknown stored state %d", ErrDataIntegrity, post.ID, post.StateID)
	}
	return label, nil
}
