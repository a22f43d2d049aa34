package pairing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/g1ctl/internal/testutils"
	"github.com/srg/g1ctl/internal/transport"
	"github.com/srg/g1ctl/pkg/config"
)

type fakePairer struct {
	calls []transport.Side
	err   error
}

func (p *fakePairer) Pair(_ context.Context, side transport.Side, _ string) error {
	p.calls = append(p.calls, side)
	return p.err
}

func perSideFactory(left, right *testutils.FakeLink) transport.LinkFactory {
	return func(s transport.Side) (transport.Link, error) {
		if s == transport.Right {
			return right, nil
		}
		return left, nil
	}
}

func boundConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	cfg.Left = config.SideConfig{Address: "AA:BB:CC:DD:EE:01", Name: "G1_L_123"}
	cfg.Right = config.SideConfig{Address: "AA:BB:CC:DD:EE:02", Name: "G1_R_123"}
	return cfg
}

func quietLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func TestVerifyPairingBothSidesReachable(t *testing.T) {
	left := testutils.NewFakeLink(transport.Left)
	right := testutils.NewFakeLink(transport.Right)
	cfg := boundConfig(t)
	pairer := &fakePairer{}

	c := NewCoordinator(perSideFactory(left, right), pairer, cfg, quietLogger())

	assert.True(t, c.VerifyPairing(context.Background()))
	assert.Empty(t, pairer.calls, "a clean probe must not invoke pairing")
	assert.True(t, cfg.Left.Paired)
	assert.True(t, cfg.Right.Paired)
	assert.False(t, left.IsConnected(), "probe must disconnect after verifying")
}

func TestVerifyPairingRecoversViaPairer(t *testing.T) {
	left := testutils.NewFakeLink(transport.Left)
	left.ConnectErrs = []error{errors.New("not bonded")} // re-probe succeeds
	right := testutils.NewFakeLink(transport.Right)
	cfg := boundConfig(t)
	pairer := &fakePairer{}

	c := NewCoordinator(perSideFactory(left, right), pairer, cfg, quietLogger())

	assert.True(t, c.VerifyPairing(context.Background()))
	assert.Equal(t, []transport.Side{transport.Left}, pairer.calls)
	assert.True(t, cfg.Left.Paired)
}

func TestVerifyPairingManualPlatformReportsUnverified(t *testing.T) {
	left := testutils.NewFakeLink(transport.Left)
	left.ConnectErrs = []error{errors.New("not bonded")}
	right := testutils.NewFakeLink(transport.Right)
	cfg := boundConfig(t)
	pairer := &fakePairer{err: &transport.PairingError{Side: transport.Left, Manual: true, Err: errors.New("no programmatic pairing")}}

	c := NewCoordinator(perSideFactory(left, right), pairer, cfg, quietLogger())

	assert.False(t, c.VerifyPairing(context.Background()))
	assert.False(t, cfg.Left.Paired)
	assert.True(t, cfg.Right.Paired, "the reachable side is still confirmed")
}

func TestVerifyPairingPersistentProbeFailure(t *testing.T) {
	left := testutils.NewFakeLink(transport.Left)
	left.ConnectErrs = []error{errors.New("unreachable"), errors.New("unreachable")}
	right := testutils.NewFakeLink(transport.Right)
	cfg := boundConfig(t)
	pairer := &fakePairer{}

	c := NewCoordinator(perSideFactory(left, right), pairer, cfg, quietLogger())

	assert.False(t, c.VerifyPairing(context.Background()), "probe failing after pairing stays unverified")
	assert.Equal(t, []transport.Side{transport.Left}, pairer.calls)
	assert.False(t, cfg.Left.Paired)
}

func TestVerifyPairingUnboundSide(t *testing.T) {
	left := testutils.NewFakeLink(transport.Left)
	right := testutils.NewFakeLink(transport.Right)
	cfg := boundConfig(t)
	cfg.Right = config.SideConfig{}
	pairer := &fakePairer{}

	c := NewCoordinator(perSideFactory(left, right), pairer, cfg, quietLogger())

	assert.False(t, c.VerifyPairing(context.Background()), "an unbound side can never verify")
	assert.Equal(t, 0, right.ConnectCalls())
}

func TestVerifyPairingNoBoundSides(t *testing.T) {
	cfg := boundConfig(t)
	cfg.ClearBinding()

	c := NewCoordinator(perSideFactory(testutils.NewFakeLink(transport.Left), testutils.NewFakeLink(transport.Right)), &fakePairer{}, cfg, quietLogger())

	assert.False(t, c.VerifyPairing(context.Background()))
}

func TestManualPairerAlwaysManual(t *testing.T) {
	p := NewManualPairer(quietLogger())

	err := p.Pair(context.Background(), transport.Left, "AA:BB:CC:DD:EE:01")
	require.Error(t, err)

	var perr *transport.PairingError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Manual)
	assert.Equal(t, transport.Left, perr.Side)
}
