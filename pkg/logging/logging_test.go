package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestWithComponentTagsField(t *testing.T) {
	entry := WithComponent("LockManager")
	require.Equal(t, "LockManager", entry.Data["component"])
}

func TestSetLevelChangesLogging(t *testing.T) {
	SetLevel(logrus.DebugLevel)
	require.True(t, base.IsLevelEnabled(logrus.DebugLevel))
	SetLevel(logrus.InfoLevel)
	require.False(t, base.IsLevelEnabled(logrus.DebugLevel))
}
