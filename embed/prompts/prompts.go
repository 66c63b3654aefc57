package prompts

import _ "embed"

// GoalReply is the text/template rendered when a message produces a goal.
//
//go:embed goal_reply.tmpl
var GoalReply string

// ClarifyReply is the text/template rendered when a message does not ask for a plan.
//
//go:embed clarify_reply.tmpl
var ClarifyReply string
