package models

import "time"

// Project carries only the fields this service reads from the projects
// service. Progress is a display cache over there, the source of truth is
// the aggregator here.
type Project struct {
	ID             string    `json:"id"`
	StartDate      time.Time `json:"startDate"`
	DueDate        time.Time `json:"dueDate"`
	AssignedTeamID string    `json:"assignedTeamId"`
	Progress       int       `json:"progress"`
}
