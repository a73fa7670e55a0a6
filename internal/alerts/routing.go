package alerts

type Role string

const (
	RoleStudent     Role = "student"
	RoleTeacher     Role = "teacher"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// tier orders staff roles for escalation; higher is more senior.
var tier = map[Role]int{RoleTeacher: 1, RoleCoordinator: 2, RoleAdmin: 3}

var byPriority = map[Priority][]Role{
	PriorityCritical: {RoleTeacher, RoleCoordinator, RoleAdmin},
	PriorityHigh:     {RoleTeacher, RoleCoordinator},
	PriorityMedium:   {RoleTeacher},
	PriorityLow:      {RoleCoordinator, RoleAdmin},
}

// Route lists the roles notified for an alert. Achievement and streak_break
// alerts also go to the student.
func Route(t Type, p Priority) []Role {
	roles := append([]Role(nil), byPriority[p]...)
	if t == TypeAchievement || t == TypeStreakBreak {
		roles = append(roles, RoleStudent)
	}
	return roles
}

// Recipient is a user who may receive a student's alerts.
type Recipient struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// AssignOwner picks the alert owner among candidates: the most senior routed
// staff role for critical alerts, otherwise the least senior (teacher first).
// Within a tier the first candidate wins.
func AssignOwner(p Priority, routed []Role, candidates []Recipient) string {
	allowed := map[Role]bool{}
	for _, r := range routed {
		if tier[r] > 0 {
			allowed[r] = true
		}
	}
	best := ""
	bestTier := 0
	for _, c := range candidates {
		t := tier[c.Role]
		if t == 0 || !allowed[c.Role] {
			continue
		}
		switch {
		case best == "":
		case p == PriorityCritical && t > bestTier:
		case p != PriorityCritical && t < bestTier:
		default:
			continue
		}
		best, bestTier = c.UserID, t
	}
	return best
}

// Recipients keeps the candidates whose role is routed. The student is added
// when routed.
func Recipients(studentID string, routed []Role, candidates []Recipient) []Recipient {
	allowed := map[Role]bool{}
	for _, r := range routed {
		allowed[r] = true
	}
	seen := map[string]bool{}
	var out []Recipient
	for _, c := range candidates {
		if !allowed[c.Role] || seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		out = append(out, c)
	}
	if allowed[RoleStudent] && !seen[studentID] {
		out = append(out, Recipient{UserID: studentID, Role: RoleStudent})
	}
	return out
}
