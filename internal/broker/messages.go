// ABOUTME: Reply and notice texts sent to users and agents
// ABOUTME: Notices that name a user end with "(userID)" so agents can reply to them

package broker

import (
	"fmt"
	"strings"
	"time"
)

const (
	msgBlacklisted     = "You are not allowed to request a human agent."
	msgAlreadyWaiting  = "You are already waiting for an agent. Please be patient."
	msgAlreadyTalking  = "You are already talking to an agent."
	msgSelecting       = "You are already choosing an agent. Reply with a number, or 0 to cancel."
	msgNoAgent         = "No agent is available right now. Please try again later."
	msgSelectCancelled = "Agent selection cancelled."
	msgNotANumber      = "Please enter a number."
	msgNoRequest       = "You have no pending hand-off request."
	msgRequestCancel   = "Your request has been cancelled."
	msgLeftQueue       = "You have left the queue."
	msgNotQueued       = "You are not in any queue."
	msgUserEnded       = "Conversation ended. You are back with the assistant."
	msgRejectedUser    = "Sorry, no agent can take your request right now. Please try again later."
	msgPausedUser      = "The agent has paused the conversation. Your messages are not forwarded until it resumes."
	msgResumedUser     = "The agent has resumed the conversation."
	msgPaused          = "The conversation is paused; your message was not forwarded."
	msgTimedOutUser    = "The conversation reached its time limit and has ended. You are back with the assistant."
	msgQueueExpired    = "You waited too long in the queue and have been removed. Feel free to ask again."
	msgBlockedUser     = "You have been blocked by an agent. The conversation has ended."
	msgNotAgent        = "Only agents can do that."
	msgMissingUser     = "Specify a user ID."
	msgNoConversation  = "You have no conversation to end."
	msgQueueEmpty      = "The queue is empty."
	msgViewCancelled   = "Cancelled."
)

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

func queuedMsg(agentName string, pos int) string {
	return fmt.Sprintf("%s is busy. You are number %d in the queue; you will be connected when it is your turn.", agentName, pos)
}

func queuePositionMsg(agentName string, pos, size int) string {
	return fmt.Sprintf("You are number %d of %d in %s's queue (%d ahead of you).", pos, size, agentName, pos-1)
}

func queueGrowthMsg(user string, size int) string {
	return fmt.Sprintf("%s joined your queue. Users waiting: %d", user, size)
}

func requestNotice(user string) string {
	return fmt.Sprintf("%s is requesting a human agent. Reply accept to take over.", user)
}

func invalidChoiceMsg(n int) string {
	return fmt.Sprintf("Invalid choice. Enter a number from 1 to %d, or 0 to cancel.", n)
}

// remainingQueueMsg describes what is left in an agent's queue.
func remainingQueueMsg(size int) string {
	if size == 0 {
		return "The queue is now empty."
	}
	return fmt.Sprintf("Users still waiting: %d", size)
}

func timeoutWarning(remaining time.Duration) string {
	return fmt.Sprintf("This conversation will end in %d seconds.", int(remaining.Round(time.Second)/time.Second))
}

// formatList is the default blacklist rendering.
func formatList(title string, users []string) string {
	if len(users) == 0 {
		return title + "\nNo users are blacklisted."
	}
	var sb strings.Builder
	sb.WriteString(title)
	for i, u := range users {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, u)
	}
	return sb.String()
}
