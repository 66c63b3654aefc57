package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ldi/delegate/internal/delegation"
	"github.com/ldi/delegate/internal/intent"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server exposing sessions, goals and task
// delegation.
func NewServer(sync *session.Synchronizer, ctrl *delegation.Controller, version string) *server.MCPServer {
	s := server.NewMCPServer("Delegate", version)

	// Sessions
	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List chat sessions, most recently active first."),
	), listSessionsHandler(sync))

	s.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Start a new chat session."),
		mcp.WithString("title", mcp.Description("Session title (defaults to 'New session')")),
	), createSessionHandler(sync))

	s.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get a session with its exchanges and live goal."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
	), getSessionHandler(sync))

	s.AddTool(mcp.NewTool("rename_session",
		mcp.WithDescription("Change the title of a session."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title"), mcp.Required()),
	), renameSessionHandler(sync))

	s.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a session with its exchanges and goal."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
	), deleteSessionHandler(sync))

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to a session. Requests for a project produce a proposed goal with tasks and assignees."),
		mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
		mcp.WithString("session_id", mcp.Description("Session ID. Omit to start a new session titled from the message.")),
	), sendMessageHandler(sync))

	// Planning
	s.AddTool(mcp.NewTool("classify_request",
		mcp.WithDescription("Classify a request into a project archetype (website, mobile, marketing or generic)."),
		mcp.WithString("text", mcp.Description("Request text"), mcp.Required()),
	), classifyRequestHandler())

	s.AddTool(mcp.NewTool("draft_goal",
		mcp.WithDescription("Preview the goal a request would produce against the current team. Nothing is stored."),
		mcp.WithString("text", mcp.Description("Request text"), mcp.Required()),
	), draftGoalHandler(ctrl))

	s.AddTool(mcp.NewTool("approve_goal",
		mcp.WithDescription("Approve the live goal of a session. Its tasks become tracked work."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
	), approveGoalHandler(sync, ctrl))

	// Tasks
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Add a task to the live goal of a session."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("priority", mcp.Description("Priority (low|medium|high, defaults to medium)")),
		mcp.WithNumber("estimated_hours", mcp.Description("Estimated hours")),
		mcp.WithArray("dependencies", mcp.WithStringItems(), mcp.Description("IDs of earlier tasks of the same goal")),
		mcp.WithArray("required_skills", mcp.WithStringItems(), mcp.Description("Skills the task needs")),
		mcp.WithString("assignee_id", mcp.Description("Member ID. Omit to assign the best skill match.")),
	), createTaskHandler(sync, ctrl))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of a task in the live goal of a session."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority (low|medium|high)")),
		mcp.WithNumber("estimated_hours", mcp.Description("New estimate in hours")),
		mcp.WithString("status", mcp.Description("New status (proposed|todo|in_progress|done)")),
		mcp.WithArray("dependencies", mcp.WithStringItems(), mcp.Description("Replacement dependency list")),
		mcp.WithArray("required_skills", mcp.WithStringItems(), mcp.Description("Replacement skill list")),
	), updateTaskHandler(sync, ctrl))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task from the live goal of a session."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(sync, ctrl))

	s.AddTool(mcp.NewTool("assign_task",
		mcp.WithDescription("Assign a task to a team member, replacing any current assignee."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("member_id", mcp.Description("Member ID. Empty clears the assignment.")),
	), assignTaskHandler(sync, ctrl))

	// Team
	s.AddTool(mcp.NewTool("list_members",
		mcp.WithDescription("List the team roster with roles and skills."),
	), listMembersHandler(sync))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// hoursArg reads a whole, non-negative number of hours. ok is false when
// the argument is absent.
func hoursArg(args map[string]any, key string) (hours int, ok bool, err error) {
	raw, present := args[key]
	if !present || raw == nil {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		if f, err = v.Float64(); err != nil {
			return 0, true, &models.ValidationError{Field: key, Reason: "must be a number"}
		}
	default:
		return 0, true, &models.ValidationError{Field: key, Reason: "must be a number"}
	}

	switch {
	case f < 0:
		return 0, true, &models.ValidationError{Field: key, Reason: "must not be negative"}
	case f != math.Trunc(f):
		return 0, true, &models.ValidationError{Field: key, Reason: fmt.Sprintf("must be whole hours, got %v", f)}
	case f > math.MaxInt32:
		return 0, true, &models.ValidationError{Field: key, Reason: "is too large"}
	}
	return int(f), true, nil
}

// liveGoal refetches a session and returns its live goal.
func liveGoal(ctx context.Context, sync *session.Synchronizer, sessionID string) (*models.Goal, error) {
	v, err := sync.Refresh(sessionID, session.Callbacks[*models.Session]{}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if v.Goal == nil {
		return nil, fmt.Errorf("session '%s' has no goal yet", sessionID)
	}
	return v.Goal, nil
}

func listSessionsHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions, err := sync.LoadSessions(session.Callbacks[[]*models.Session]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"sessions": sessions})
	}
}

func createSessionHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := mcp.ParseString(request, "title", "")

		created, err := sync.CreateSession(title, session.Callbacks[*models.Session]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(created)
	}
}

func getSessionHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")

		v, err := sync.Refresh(id, session.Callbacks[*models.Session]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func renameSessionHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		title := mcp.ParseString(request, "title", "")

		if _, err := sync.UpdateSessionTitle(id, title, session.Callbacks[struct{}]{}).Wait(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := sync.Refresh(id, session.Callbacks[*models.Session]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func deleteSessionHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")

		if _, err := sync.DeleteSession(id, session.Callbacks[struct{}]{}).Wait(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Session '%s' deleted", id)), nil
	}
}

func sendMessageHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")
		id := mcp.ParseString(request, "session_id", "")

		op := sync.SendMessage(id, text, session.Callbacks[*models.Exchange]{})
		if op.Skipped() {
			return mcp.NewToolResultError(fmt.Sprintf("A message to session '%s' is still being answered", id)), nil
		}
		e, err := op.Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(e)
	}
}

func classifyRequestHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")

		return jsonResult(map[string]any{
			"archetype":    intent.Classify(text),
			"goal_request": intent.IsGoalRequest(text),
		})
	}
}

func draftGoalHandler(ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")

		g, err := ctrl.Draft(text)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(g)
	}
}

func approveGoalHandler(sync *session.Synchronizer, ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")

		goal, err := liveGoal(ctx, sync, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		approved, err := ctrl.Approve(goal, session.Callbacks[*models.Goal]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(approved)
	}
}

func createTaskHandler(sync *session.Synchronizer, ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		in := models.TaskInput{
			Title:          mcp.ParseString(request, "title", ""),
			Description:    mcp.ParseString(request, "description", ""),
			Priority:       models.Priority(mcp.ParseString(request, "priority", "")),
			Dependencies:   request.GetStringSlice("dependencies", nil),
			RequiredSkills: request.GetStringSlice("required_skills", nil),
			AssigneeID:     mcp.ParseString(request, "assignee_id", ""),
		}
		args, _ := request.Params.Arguments.(map[string]any)
		hours, _, err := hoursArg(args, "estimated_hours")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.EstimatedHours = hours
		if in.Priority != "" {
			p, err := models.ParsePriority(string(in.Priority))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.Priority = p
		}

		goal, err := liveGoal(ctx, sync, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t, err := ctrl.AddTask(goal, in, session.Callbacks[*models.Task]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func updateTaskHandler(sync *session.Synchronizer, ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		taskID := mcp.ParseString(request, "task_id", "")

		var patch models.TaskPatch
		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			patch.Title = &title
		}
		if description, ok := args["description"].(string); ok {
			patch.Description = &description
		}
		if priority, ok := args["priority"].(string); ok {
			p, err := models.ParsePriority(priority)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			patch.Priority = &p
		}
		hours, ok, err := hoursArg(args, "estimated_hours")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if ok {
			patch.EstimatedHours = &hours
		}
		if status, ok := args["status"].(string); ok {
			st := models.TaskStatus(status)
			patch.Status = &st
		}
		if _, ok := args["dependencies"]; ok {
			deps := request.GetStringSlice("dependencies", []string{})
			patch.Dependencies = &deps
		}
		if _, ok := args["required_skills"]; ok {
			skills := request.GetStringSlice("required_skills", []string{})
			patch.RequiredSkills = &skills
		}

		goal, err := liveGoal(ctx, sync, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t, err := ctrl.EditTask(goal, taskID, patch, session.Callbacks[*models.Task]{}).Wait(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func deleteTaskHandler(sync *session.Synchronizer, ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		taskID := mcp.ParseString(request, "task_id", "")

		goal, err := liveGoal(ctx, sync, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if _, err := ctrl.RemoveTask(goal, taskID, session.Callbacks[struct{}]{}).Wait(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func assignTaskHandler(sync *session.Synchronizer, ctrl *delegation.Controller) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "session_id", "")
		taskID := mcp.ParseString(request, "task_id", "")
		memberID := mcp.ParseString(request, "member_id", "")

		goal, err := liveGoal(ctx, sync, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t, err := ctrl.Assign(goal, taskID, memberID, session.Callbacks[*models.Task]{}).Wait(ctx)
		if err != nil {
			var ve *models.ValidationError
			if errors.As(err, &ve) && ve.Field == "member" {
				return mcp.NewToolResultError(fmt.Sprintf("Member with ID '%s' not found", memberID)), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func listMembersHandler(sync *session.Synchronizer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"members": sync.Members()})
	}
}
