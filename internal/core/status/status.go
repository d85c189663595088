// Package status infers what a session's agent is doing from its message
// history. Inference is pure: it can be re-derived from stored messages at
// any time, with no hidden state.
package status

import (
	"time"

	"github.com/ccdeck/ccdeck/internal/core/models"
)

// remoteActivityWindow is how recently the last message must have arrived
// for a user-authored tail to count as in-progress work on the remote side.
const remoteActivityWindow = 10 * time.Second

// Detect infers a session's status from its messages and whether the agent
// process is alive. The message list is assumed pre-sorted by timestamp.
// Total function: never panics, for any input.
func Detect(messages []models.Message, agentAlive bool) models.Status {
	if !agentAlive {
		return models.StatusIdle
	}
	if len(messages) == 0 {
		return models.StatusIdle
	}

	last := messages[len(messages)-1]
	if last.Author == models.AuthorUser {
		// The agent has not produced a reply yet.
		return models.StatusWorking
	}
	if last.HasPendingTool() {
		return models.StatusWorking
	}
	return models.StatusWaiting
}

// DetectRemote approximates Detect for sessions served by the remote
// backend, which exposes no agent-liveness signal. A user-authored tail
// within the activity window means the agent is presumably still working;
// an agent-authored tail means it is waiting; anything else is idle.
// If the backend ever grows a real liveness flag, use Detect instead.
func DetectRemote(messages []models.Message, now time.Time) models.Status {
	if len(messages) == 0 {
		return models.StatusIdle
	}

	last := messages[len(messages)-1]
	if last.Author == models.AuthorUser && now.Sub(last.Timestamp) <= remoteActivityWindow {
		return models.StatusWorking
	}
	if last.Author == models.AuthorAgent {
		return models.StatusWaiting
	}
	return models.StatusIdle
}
