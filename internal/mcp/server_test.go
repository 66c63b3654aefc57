package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/backend/backendtest"
	"github.com/ldi/delegate/internal/delegation"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	local, _ := backendtest.NewLocal(t)
	sync := session.New(local, local, zap.NewNop())
	t.Cleanup(sync.Close)

	if err := sync.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Failed to bootstrap: %v", err)
	}
	return NewServer(sync, delegation.New(sync, local, zap.NewNop()), "test")
}

// call invokes a tool and fails the test if the tool reports an error.
func call(t *testing.T, s *server.MCPServer, name string, args map[string]any) string {
	t.Helper()
	result := callRaw(t, s, name, args)
	if result.IsError {
		t.Fatalf("Tool %s returned error: %v", name, result.Content[0])
	}
	return result.Content[0].(mcp.TextContent).Text
}

func callRaw(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := tool.Handler(ctx, req)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return result
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("Failed to unmarshal response: %v\nOutput: %s", err, text)
	}
	return v
}

func TestServerInitialization(t *testing.T) {
	s := newTestServer(t)
	stdio := server.NewStdioServer(s)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- stdio.Listen(ctx, inR, outW)
	}()

	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(outR)
		if scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}

	rawReq := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  initReq.Params,
	}

	data, err := json.Marshal(rawReq)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	if _, err := inW.Write(append(data, '\n')); err != nil {
		t.Fatalf("Failed to write request: %v", err)
	}

	var line string
	select {
	case l, ok := <-lines:
		if !ok {
			t.Fatal("Expected response from server, got none")
		}
		line = l
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the initialize response")
	}

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v\nOutput: %s", err, line)
	}
	if resp.ID != 1 {
		t.Errorf("Expected id 1, got %v", resp.ID)
	}
	if resp.Result.ServerInfo.Name != "Delegate" {
		t.Errorf("Expected server name Delegate, got %v", resp.Result.ServerInfo.Name)
	}

	cancel()
	inW.Close()
	outR.Close()
	<-errChan
}

func TestToolHandlers(t *testing.T) {
	s := newTestServer(t)

	var sessionID string
	var goal models.Goal

	t.Run("classify_request", func(t *testing.T) {
		resp := decode[struct {
			Archetype   models.Archetype `json:"archetype"`
			GoalRequest bool             `json:"goal_request"`
		}](t, call(t, s, "classify_request", map[string]any{"text": "Build an iOS app for members"}))

		if resp.Archetype != models.ArchetypeMobile || !resp.GoalRequest {
			t.Errorf("Expected mobile goal request, got %+v", resp)
		}
	})

	t.Run("draft_goal", func(t *testing.T) {
		g := decode[models.Goal](t, call(t, s, "draft_goal", map[string]any{"text": "We need a website"}))
		if g.TotalHours != 98 || g.EstimatedDuration != "13 working days" {
			t.Errorf("Expected 98h / 13 working days, got %dh / %s", g.TotalHours, g.EstimatedDuration)
		}

		sessions := decode[struct {
			Sessions []*models.Session `json:"sessions"`
		}](t, call(t, s, "list_sessions", nil))
		if len(sessions.Sessions) != 0 {
			t.Errorf("Expected draft_goal to store nothing, got %d sessions", len(sessions.Sessions))
		}
	})

	t.Run("send_message", func(t *testing.T) {
		e := decode[models.Exchange](t, call(t, s, "send_message", map[string]any{"text": "We need a website for the bakery"}))
		if e.Goal == nil || len(e.Goal.Tasks) != 6 {
			t.Fatalf("Expected a proposed goal with 6 tasks, got %+v", e.Goal)
		}
		sessionID = e.SessionID
	})

	t.Run("get_session", func(t *testing.T) {
		v := decode[models.Session](t, call(t, s, "get_session", map[string]any{"session_id": sessionID}))
		if v.Title != "We need a website for the bakery" {
			t.Errorf("Expected title from the first message, got %q", v.Title)
		}
		if len(v.Exchanges) != 1 || v.Goal == nil {
			t.Fatalf("Expected one exchange and a goal, got %d exchanges", len(v.Exchanges))
		}
		goal = *v.Goal
	})

	t.Run("update_task", func(t *testing.T) {
		task := decode[models.Task](t, call(t, s, "update_task", map[string]any{
			"session_id":      sessionID,
			"task_id":         goal.Tasks[0].ID,
			"priority":        "LOW",
			"estimated_hours": 4.0,
		}))
		if task.Priority != models.PriorityLow || task.EstimatedHours != 4 {
			t.Errorf("Expected low priority and 4 hours, got %s / %d", task.Priority, task.EstimatedHours)
		}
	})

	t.Run("update_task_forward_dependency", func(t *testing.T) {
		result := callRaw(t, s, "update_task", map[string]any{
			"session_id":   sessionID,
			"task_id":      goal.Tasks[0].ID,
			"dependencies": []any{goal.Tasks[1].ID},
		})
		if !result.IsError {
			t.Fatal("Expected an error for a forward dependency")
		}
		if text := result.Content[0].(mcp.TextContent).Text; !strings.Contains(text, "dependencies") {
			t.Errorf("Expected the error to name dependencies, got %q", text)
		}
	})

	t.Run("fractional_and_negative_hours", func(t *testing.T) {
		tests := []struct {
			tool string
			args map[string]any
		}{
			{"update_task", map[string]any{"session_id": sessionID, "task_id": goal.Tasks[0].ID, "estimated_hours": 2.7}},
			{"update_task", map[string]any{"session_id": sessionID, "task_id": goal.Tasks[0].ID, "estimated_hours": -0.5}},
			{"create_task", map[string]any{"session_id": sessionID, "title": "Copy review", "estimated_hours": -0.5}},
			{"create_task", map[string]any{"session_id": sessionID, "title": "Copy review", "estimated_hours": "six"}},
		}
		for _, tt := range tests {
			result := callRaw(t, s, tt.tool, tt.args)
			if !result.IsError {
				t.Errorf("%s with estimated_hours=%v: expected an error", tt.tool, tt.args["estimated_hours"])
				continue
			}
			if text := result.Content[0].(mcp.TextContent).Text; !strings.Contains(text, "estimated_hours") {
				t.Errorf("Expected the error to name estimated_hours, got %q", text)
			}
		}

		v := decode[models.Session](t, call(t, s, "get_session", map[string]any{"session_id": sessionID}))
		if v.Goal.Tasks[0].EstimatedHours != 4 || len(v.Goal.Tasks) != 6 {
			t.Errorf("Expected rejected hours to change nothing, got %dh and %d tasks", v.Goal.Tasks[0].EstimatedHours, len(v.Goal.Tasks))
		}
	})

	t.Run("create_task", func(t *testing.T) {
		task := decode[models.Task](t, call(t, s, "create_task", map[string]any{
			"session_id":      sessionID,
			"title":           "Accessibility audit",
			"estimated_hours": 6.0,
			"required_skills": []any{"qa"},
			"dependencies":    []any{goal.Tasks[4].ID},
		}))
		if task.AssignedTo == nil || task.AssignedTo.Name != "Sam" {
			t.Errorf("Expected Sam to be matched on qa, got %+v", task.AssignedTo)
		}

		v := decode[models.Session](t, call(t, s, "get_session", map[string]any{"session_id": sessionID}))
		if v.Goal.TotalHours != 98-8+4+6 {
			t.Errorf("Expected %d hours, got %d", 98-8+4+6, v.Goal.TotalHours)
		}
	})

	t.Run("assign_task", func(t *testing.T) {
		members := decode[struct {
			Members []*models.TeamMember `json:"members"`
		}](t, call(t, s, "list_members", nil))
		if len(members.Members) != len(backendtest.Team()) {
			t.Fatalf("Expected %d members, got %d", len(backendtest.Team()), len(members.Members))
		}

		var priya *models.TeamMember
		for _, m := range members.Members {
			if m.Name == "Priya" {
				priya = m
			}
		}
		task := decode[models.Task](t, call(t, s, "assign_task", map[string]any{
			"session_id": sessionID,
			"task_id":    goal.Tasks[2].ID,
			"member_id":  priya.ID,
		}))
		if task.AssignedTo == nil || task.AssignedTo.MemberID != priya.ID {
			t.Errorf("Expected Priya as assignee, got %+v", task.AssignedTo)
		}

		result := callRaw(t, s, "assign_task", map[string]any{
			"session_id": sessionID,
			"task_id":    goal.Tasks[2].ID,
			"member_id":  "nobody",
		})
		if !result.IsError {
			t.Error("Expected an error for an unknown member")
		}
	})

	t.Run("delete_task", func(t *testing.T) {
		call(t, s, "delete_task", map[string]any{"session_id": sessionID, "task_id": goal.Tasks[5].ID})

		v := decode[models.Session](t, call(t, s, "get_session", map[string]any{"session_id": sessionID}))
		if v.Goal.Task(goal.Tasks[5].ID) != nil {
			t.Error("Expected the task to be deleted")
		}
	})

	t.Run("approve_goal", func(t *testing.T) {
		g := decode[models.Goal](t, call(t, s, "approve_goal", map[string]any{"session_id": sessionID}))
		if g.Status != models.GoalStatusApproved {
			t.Errorf("Expected approved goal, got %s", g.Status)
		}
		for _, task := range g.Tasks {
			if task.Status != models.TaskStatusTodo {
				t.Errorf("Expected task %q to be todo, got %s", task.Title, task.Status)
			}
		}
	})

	t.Run("approve_goal_without_goal", func(t *testing.T) {
		created := decode[models.Session](t, call(t, s, "create_session", map[string]any{}))
		if created.Title != backend.DefaultSessionTitle {
			t.Errorf("Expected default title, got %q", created.Title)
		}
		if result := callRaw(t, s, "approve_goal", map[string]any{"session_id": created.ID}); !result.IsError {
			t.Error("Expected an error approving a session without a goal")
		}
	})

	t.Run("rename_and_delete_session", func(t *testing.T) {
		created := decode[models.Session](t, call(t, s, "create_session", map[string]any{"title": "Scratch"}))

		renamed := decode[models.Session](t, call(t, s, "rename_session", map[string]any{
			"session_id": created.ID,
			"title":      "Offsite planning",
		}))
		if renamed.Title != "Offsite planning" {
			t.Errorf("Expected renamed title, got %q", renamed.Title)
		}
		if result := callRaw(t, s, "rename_session", map[string]any{"session_id": created.ID, "title": "  "}); !result.IsError {
			t.Error("Expected an error for an empty title")
		}

		call(t, s, "delete_session", map[string]any{"session_id": created.ID})

		sessions := decode[struct {
			Sessions []*models.Session `json:"sessions"`
		}](t, call(t, s, "list_sessions", nil))
		for _, v := range sessions.Sessions {
			if v.ID == created.ID {
				t.Error("Expected the deleted session to leave the list")
			}
		}
		if result := callRaw(t, s, "get_session", map[string]any{"session_id": created.ID}); !result.IsError {
			t.Error("Expected the deleted session to be gone")
		}
	})

	t.Run("get_missing_session", func(t *testing.T) {
		if result := callRaw(t, s, "get_session", map[string]any{"session_id": "missing"}); !result.IsError {
			t.Error("Expected an error for a missing session")
		}
	})
}
