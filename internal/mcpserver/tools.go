package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ken-run/ken/internal/handler"
	"github.com/ken-run/ken/internal/kenmodel"
)

type completeArgs struct {
	SessionID string `json:"session_id" jsonschema:"The id of the calling session"`
	Result    string `json:"result" jsonschema:"The session's terminal result, recorded verbatim"`
}

type failArgs struct {
	SessionID string `json:"session_id" jsonschema:"The id of the calling session"`
	Reason    string `json:"reason" jsonschema:"Why the session failed, recorded verbatim"`
}

type sleepArgs struct {
	SessionID  string         `json:"session_id" jsonschema:"The id of the calling session"`
	Trigger    map[string]any `json:"trigger" jsonschema:"The wake condition: all_complete, any_complete, timeout_at, timeout_seconds, or any"`
	Checkpoint string         `json:"checkpoint,omitempty" jsonschema:"Free-form state to resume from on the next wake"`
}

type childSpecArgs struct {
	KenPath  string             `json:"ken_path" jsonschema:"Slash-delimited path under kens/ naming the child's kenning"`
	Task     string             `json:"task" jsonschema:"The task handed to the child on spawn"`
	DoneWhen *kenmodel.DoneWhen `json:"done_when,omitempty" jsonschema:"Optional completion criteria for the child"`
}

type spawnAndSleepArgs struct {
	SessionID  string          `json:"session_id" jsonschema:"The id of the calling session"`
	Children   []childSpecArgs `json:"children" jsonschema:"One or more children to mint atomically with this sleep"`
	Trigger    map[string]any  `json:"trigger" jsonschema:"The wake condition; __CHILDREN__ in an ids list resolves to the minted children"`
	Checkpoint string          `json:"checkpoint,omitempty" jsonschema:"Free-form state to resume from on the next wake"`
}

// registerTools wires ken's four agent requests as MCP tools, each
// forwarding straight to the handler.Handler method behind the CLI's
// `ken request` channel — grounded on the teacher's tools.go RegisterTools.
func registerTools(server *mcp.Server, h *handler.Handler) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ken_complete",
		Description: "Mark the calling session complete with a terminal result.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args completeArgs) (*mcp.CallToolResult, any, error) {
		resp := h.Complete(kenmodel.CompleteRequest{
			Envelope: kenmodel.Envelope{SessionID: args.SessionID, Type: kenmodel.RequestComplete},
			Result:   args.Result,
		})
		return toolResultFor(resp)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ken_fail",
		Description: "Mark the calling session failed with a reason.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args failArgs) (*mcp.CallToolResult, any, error) {
		resp := h.Fail(kenmodel.FailRequest{
			Envelope: kenmodel.Envelope{SessionID: args.SessionID, Type: kenmodel.RequestFail},
			Reason:   args.Reason,
		})
		return toolResultFor(resp)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ken_sleep",
		Description: "Checkpoint the calling session and sleep until its trigger is satisfied.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args sleepArgs) (*mcp.CallToolResult, any, error) {
		triggerRaw, err := json.Marshal(args.Trigger)
		if err != nil {
			return toolError(fmt.Sprintf("invalid trigger: %v", err)), nil, nil
		}
		resp := h.Sleep(kenmodel.SleepRequest{
			Envelope:   kenmodel.Envelope{SessionID: args.SessionID, Type: kenmodel.RequestSleep},
			TriggerRaw: triggerRaw,
			Checkpoint: args.Checkpoint,
		})
		return toolResultFor(resp)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ken_spawn_and_sleep",
		Description: "Atomically spawn one or more children and sleep on a trigger over them.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args spawnAndSleepArgs) (*mcp.CallToolResult, any, error) {
		triggerRaw, err := json.Marshal(args.Trigger)
		if err != nil {
			return toolError(fmt.Sprintf("invalid trigger: %v", err)), nil, nil
		}
		children := make([]kenmodel.ChildSpec, len(args.Children))
		for i, c := range args.Children {
			children[i] = kenmodel.ChildSpec{KenPath: c.KenPath, Task: c.Task, DoneWhen: c.DoneWhen}
		}
		resp := h.SpawnAndSleep(kenmodel.SpawnAndSleepRequest{
			Envelope:   kenmodel.Envelope{SessionID: args.SessionID, Type: kenmodel.RequestSpawnAndSleep},
			Children:   children,
			TriggerRaw: triggerRaw,
			Checkpoint: args.Checkpoint,
		})
		return toolResultFor(resp)
	})
}

func toolResultFor(resp kenmodel.Response) (*mcp.CallToolResult, any, error) {
	if !resp.OK {
		return toolError(resp.Error), nil, nil
	}
	encoded, err := json.Marshal(resp.Data)
	if err != nil {
		return toolError(err.Error()), nil, nil
	}
	return toolResult(string(encoded)), nil, nil
}

func toolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}, IsError: true}
}
