package proposal

// QuorumPolicy decides how many ballots of one kind settle a proposal.
type QuorumPolicy interface {
	// Required returns the number of approvals (or rejections) needed among n maestros.
	// Zero means the ballots can never settle the proposal.
	Required(maestros int) int
}

// MajorityQuorum requires a strict majority of the committee.
type MajorityQuorum struct{}

func (MajorityQuorum) Required(maestros int) int {
	if maestros <= 0 {
		return 0
	}
	return maestros/2 + 1
}

// FixedQuorum requires N ballots, capped to the committee size.
type FixedQuorum struct {
	N int
}

func (q FixedQuorum) Required(maestros int) int {
	if maestros <= 0 || q.N <= 0 {
		return 0
	}
	if q.N > maestros {
		return maestros
	}
	return q.N
}

// NewQuorum returns FixedQuorum{n} for a positive n, and MajorityQuorum otherwise.
func NewQuorum(n int) QuorumPolicy {
	if n > 0 {
		return FixedQuorum{N: n}
	}
	return MajorityQuorum{}
}

func reached(q QuorumPolicy, ballots, maestros int) bool {
	required := q.Required(maestros)
	return required > 0 && ballots >= required
}
