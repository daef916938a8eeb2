package scheduling

// Duration planning for combined bookings: one user request covering several
// student/subject pairs taught in the same time block.

type MemberPair struct {
	StudentID int64
	Subject   string
}

type DurationPolicy string

const (
	// PolicyGroup: every member shares the subject and is taught together,
	// so each member lesson runs the full block.
	PolicyGroup DurationPolicy = "group"
	// PolicySequential: back-to-back lessons splitting the block evenly.
	PolicySequential DurationPolicy = "sequential"
	// PolicyPerSubject: a student takes multiple subjects in one block; each
	// member gets its subject's configured base duration and the block total
	// becomes their sum.
	PolicyPerSubject DurationPolicy = "per_subject"
)

type PlannedMember struct {
	MemberPair
	DurationMinutes int
}

type SessionPlan struct {
	Policy DurationPolicy
	// TotalMinutes is the block length implied by the plan. For group and
	// sequential plans it echoes the requested total; for per-subject plans
	// it is the sum of the member durations.
	TotalMinutes int
	Members      []PlannedMember
}

// PlanDurations assigns a duration to every member of a combined booking.
// baseDuration reports the configured base length for a subject (see
// billing.BaseDuration). If any student appears with more than one subject
// the per-subject policy applies to the whole request, taking precedence
// over the group and sequential rules.
func PlanDurations(pairs []MemberPair, totalMinutes int, baseDuration func(subject string) int) SessionPlan {
	plan := SessionPlan{Members: make([]PlannedMember, 0, len(pairs))}

	switch {
	case hasRepeatedStudent(pairs):
		plan.Policy = PolicyPerSubject
		for _, p := range pairs {
			d := baseDuration(p.Subject)
			plan.Members = append(plan.Members, PlannedMember{MemberPair: p, DurationMinutes: d})
			plan.TotalMinutes += d
		}
	case len(pairs) > 1 && sameSubject(pairs):
		plan.Policy = PolicyGroup
		plan.TotalMinutes = totalMinutes
		for _, p := range pairs {
			plan.Members = append(plan.Members, PlannedMember{MemberPair: p, DurationMinutes: totalMinutes})
		}
	default:
		plan.Policy = PolicySequential
		plan.TotalMinutes = totalMinutes
		share := totalMinutes
		if len(pairs) > 0 {
			share = totalMinutes / len(pairs)
		}
		for _, p := range pairs {
			plan.Members = append(plan.Members, PlannedMember{MemberPair: p, DurationMinutes: share})
		}
	}
	return plan
}

func hasRepeatedStudent(pairs []MemberPair) bool {
	seen := make(map[int64]string, len(pairs))
	for _, p := range pairs {
		if subject, ok := seen[p.StudentID]; ok && subject != p.Subject {
			return true
		}
		seen[p.StudentID] = p.Subject
	}
	return false
}

func sameSubject(pairs []MemberPair) bool {
	for _, p := range pairs[1:] {
		if p.Subject != pairs[0].Subject {
			return false
		}
	}
	return true
}
