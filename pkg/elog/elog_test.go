package elog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIFormatStripsColorWhenDisabled(t *testing.T) {
	c := &CLI{DisableColors: true}
	out, err := c.Format(&logrus.Entry{Message: "hello", Level: logrus.WarnLevel})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestCLISilentProgressWhenTTYDisabled(t *testing.T) {
	c := &CLI{DisableTTY: true}
	p := c.NewProgress("add", 10)

	p.Increment(4)
	assert.False(t, p.ShouldAbort())
	p.RequestAbort()
	assert.True(t, p.ShouldAbort())
	p.Finish(false)
}

func TestDiscardViewIsInert(t *testing.T) {
	Discard.Infof("ignored: %d", 1)
	Discard.Warnf("ignored")
	Discard.Errorf("ignored")
	Discard.Debugf("ignored")

	p := Discard.NewProgress("noop", 0)
	p.Increment(1)
	assert.False(t, p.ShouldAbort())
	p.Finish(true)
}
