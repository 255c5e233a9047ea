package leave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaveRequestStatus_IsTerminal(t *testing.T) {
	assert.False(t, LeaveRequestStatusPending.IsTerminal())
	assert.True(t, LeaveRequestStatusApproved.IsTerminal())
	assert.True(t, LeaveRequestStatusRejected.IsTerminal())
}
