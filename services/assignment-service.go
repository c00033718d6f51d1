package services

import (
	"context"
	"fmt"

	"github.com/Yohan-Helitha/DesynFlow-sub000/models"
)

// Resolution is the outcome of an assignment check. Warning is set for soft
// conditions that the UI surfaces without blocking the assignment.
type Resolution struct {
	Member  models.Member `json:"member"`
	Warning bool          `json:"warning"`
	Reason  string        `json:"reason,omitempty"`
}

// AssignmentService validates that a candidate assignee belongs to the
// project's team and is not blocked by availability.
type AssignmentService struct {
	projects ProjectDirectory
	teams    TeamDirectory
}

func NewAssignmentService(projects ProjectDirectory, teams TeamDirectory) *AssignmentService {
	return &AssignmentService{
		projects: projects,
		teams:    teams,
	}
}

// Resolve checks candidateUserID against the roster of the project's assigned
// team. A member on leave cannot take new assignments; a busy member can, but
// the result carries a warning.
func (s *AssignmentService) Resolve(ctx context.Context, projectID, candidateUserID string) (*Resolution, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if models.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve project %s: %w", projectID, err)
	}

	members, err := s.teams.GetTeamMembers(ctx, project.AssignedTeamID)
	if err != nil {
		if models.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve team %s: %w", project.AssignedTeamID, err)
	}

	for _, member := range members {
		if member.ID != candidateUserID {
			continue
		}

		switch member.Availability {
		case models.AvailabilityOnLeave:
			return nil, models.NewUnavailableError("assignedTo", "member %s is on leave and cannot take new assignments", candidateUserID)
		case models.AvailabilityBusy:
			return &Resolution{
				Member:  member,
				Warning: true,
				Reason:  fmt.Sprintf("member %s is busy (workload %d%%)", candidateUserID, member.Workload),
			}, nil
		default:
			return &Resolution{Member: member}, nil
		}
	}

	return nil, models.NewReferenceError("assignedTo", "user %s is not a member of team %s", candidateUserID, project.AssignedTeamID)
}
