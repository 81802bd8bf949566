package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagStringAndParseRoundTrip(t *testing.T) {
	for tag, name := range tagNames {
		assert.Equal(t, name, tag.String())
		parsed, ok := ParseTag(name)
		assert.True(t, ok)
		assert.Equal(t, tag, parsed)
	}
}

func TestTagStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN_TAG", Tag(-1).String())
}

func TestParseTagRejectsUnknownName(t *testing.T) {
	_, ok := ParseTag("NOT_A_REAL_TAG")
	assert.False(t, ok)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "LOOPER", RoleLooper.String())
	assert.Equal(t, "THREADPOOL", RoleThreadPool.String())
	assert.Equal(t, "UNKNOWN", RoleUnknown.String())
}

func TestRequiredRole(t *testing.T) {
	cases := map[Tag]Role{
		TagBeforeExecCB:                     RoleUnknown,
		TagAfterExecCB:                      RoleUnknown,
		TagLooperBeforeEpoll:                RoleLooper,
		TagLooperAfterEpoll:                 RoleLooper,
		TagLooperIOPollBeforeHandlingEvents: RoleLooper,
		TagLooperGettingDone:                RoleLooper,
		TagLooperRunClosing:                 RoleLooper,
		TagTimerReady:                       RoleLooper,
		TagTimerRun:                         RoleLooper,
		TagTimerNextTimeout:                 RoleLooper,
		TagTPWantsWork:                      RoleThreadPool,
		TagTPGettingWork:                    RoleThreadPool,
		TagTPGotWork:                        RoleThreadPool,
		TagTPBeforePutDone:                  RoleThreadPool,
		TagTPAfterPutDone:                   RoleThreadPool,
	}
	for tag, want := range cases {
		assert.Equal(t, want, requiredRole(tag), "tag=%s", tag)
	}
}
