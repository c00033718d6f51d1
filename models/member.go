package models

type Availability string

const (
	AvailabilityAvailable Availability = "Available"
	AvailabilityBusy      Availability = "Busy"
	AvailabilityOnLeave   Availability = "On Leave"
)

const (
	RoleTeamLeader     = "Team Leader"
	RoleTeamMember     = "Team Member"
	RoleProjectManager = "Project Manager"
)

// Member is the team directory's view of a user. The roster is owned by the
// teams service; this service only reads it to validate assignments.
type Member struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	LastName     string       `json:"lastName"`
	Username     string       `json:"username"`
	Role         string       `json:"role"`
	Availability Availability `json:"availability"`
	Workload     int          `json:"workload"`
}
