package rbac

const (
	RoleStudent     = "student"
	RoleTeacher     = "teacher"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"outcomes:view",
		"submissions:create",
		"attainment:view-own",
		// Own badges, activity and journal are reached through owner checks on those routes.
		"alerts:view",
		"alerts:help",
	},
	RoleTeacher: {
		"outcomes:view",
		"outcomes:manage",
		"assignments:create",
		"grades:*",
		"attainment:view",
		"badges:view",
		"badges:check",
		"alerts:view",
		"alerts:manage",
		"risk:view",
	},
	RoleCoordinator: {
		"outcomes:*",
		"mappings:manage",
		"attainment:*",
		"badges:view",
		"badges:check",
		"alerts:*",
		"risk:view",
		"sweep:run",
	},
	RoleAdmin: {
		"*", // everything
	},
}

// AlertView is how much of the alert table a role may read.
type AlertView int

const (
	// AlertViewNone denies listing.
	AlertViewNone AlertView = iota
	// AlertViewOwn pins the student filter to the caller.
	AlertViewOwn
	// AlertViewStudents limits to alerts assigned to the caller or about students
	// in the caller's courses.
	AlertViewStudents
	AlertViewAll
)

var alertViews = map[string]AlertView{
	RoleStudent:     AlertViewOwn,
	RoleTeacher:     AlertViewStudents,
	RoleCoordinator: AlertViewAll,
	RoleAdmin:       AlertViewAll,
}

func AlertViewFor(role string) AlertView { return alertViews[role] }
