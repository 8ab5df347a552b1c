package sim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/device/sim"
	"github.com/23skdu/longbow-npubench/internal/telemetry"
	"github.com/23skdu/longbow-npubench/internal/xfer"
)

func fastConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.RunLatency = 0
	cfg.PreemptCost = 0
	return cfg
}

func bind(t *testing.T, dev *sim.Device) *accel.Session {
	t.Helper()
	sess, err := accel.Bind(context.Background(), dev, accel.Program{Path: "loopback.xclbin"}, accel.MatchPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestLoopbackCopiesInput(t *testing.T) {
	dev := sim.New("sim0", fastConfig())
	sess := bind(t, dev)

	set := xfer.NewSet(sess)
	defer set.Close()
	instr, err := set.Allocate(accel.RoleInstruction, 16)
	require.NoError(t, err)
	in, err := set.Allocate(accel.RoleInput, 64)
	require.NoError(t, err)
	out, err := set.Allocate(accel.RoleOutput, 64)
	require.NoError(t, err)

	in.Fill(func(i int) uint32 { return uint32(i * 3) })
	out.Zero()
	require.NoError(t, in.PushToDevice())

	out0, err := sess.Execute(accel.LoopbackArgs(accel.OpcodeHostApp, in, out, instr, 4), time.Second)
	require.NoError(t, err)
	assert.Equal(t, accel.StateCompleted, out0.State)

	require.NoError(t, out.PullFromDevice())
	got, err := out.Words(0, 16)
	require.NoError(t, err)
	for i, w := range got {
		assert.Equal(t, uint32(i*3), w)
	}
	assert.Equal(t, int64(1), dev.Runs())
	assert.Equal(t, int64(1), in.DeviceMemory().(*sim.Memory).Syncs())
}

func TestInstructionCountBeyondBufferFaults(t *testing.T) {
	dev := sim.New("sim0", fastConfig())
	sess := bind(t, dev)

	set := xfer.NewSet(sess)
	defer set.Close()
	instr, _ := set.Allocate(accel.RoleInstruction, 8)
	in, _ := set.Allocate(accel.RoleInput, 4)
	out, _ := set.Allocate(accel.RoleOutput, 4)

	_, err := sess.Execute(accel.LoopbackArgs(accel.OpcodeHostApp, in, out, instr, 3), 0)
	var ee *accel.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, accel.StateFaulted, ee.State)
}

func TestFaultHook(t *testing.T) {
	dev := sim.New("sim0", fastConfig())
	boom := errors.New("dma fault")
	dev.Fault = func(seq int64, _ accel.Args) error {
		if seq == 2 {
			return boom
		}
		return nil
	}
	sess := bind(t, dev)
	set := xfer.NewSet(sess)
	defer set.Close()
	instr, _ := set.Allocate(accel.RoleInstruction, 4)
	in, _ := set.Allocate(accel.RoleInput, 4)
	out, _ := set.Allocate(accel.RoleOutput, 4)
	args := accel.LoopbackArgs(accel.OpcodeHostApp, in, out, instr, 1)

	_, err := sess.Execute(args, 0)
	require.NoError(t, err)
	_, err = sess.Execute(args, 0)
	assert.ErrorIs(t, err, boom)
}

func TestWaitTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.RunLatency = 200 * time.Millisecond
	dev := sim.New("sim0", cfg)
	sess := bind(t, dev)
	set := xfer.NewSet(sess)
	defer set.Close()
	instr, _ := set.Allocate(accel.RoleInstruction, 4)
	in, _ := set.Allocate(accel.RoleInput, 4)
	out, _ := set.Allocate(accel.RoleOutput, 4)

	_, err := sess.Execute(accel.LoopbackArgs(accel.OpcodeHostApp, in, out, instr, 1), time.Millisecond)
	var ee *accel.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, accel.StateTimedOut, ee.State)
}

func TestTelemetryReport(t *testing.T) {
	dev := sim.New("sim0", fastConfig())
	sess := bind(t, dev)
	set := xfer.NewSet(sess)
	defer set.Close()
	instr, _ := set.Allocate(accel.RoleInstruction, 4)
	tel, err := set.Allocate(accel.RoleTelemetry, telemetry.BufferSize)
	require.NoError(t, err)

	_, err = sess.Execute(accel.TelemetryArgs(accel.OpcodeHostApp, instr, 1), 0)
	require.NoError(t, err)

	raw, err := tel.Read(0, tel.Size())
	require.NoError(t, err)
	recs, count, err := telemetry.Decode(raw, telemetry.Offset, 32)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), count)
	assert.Equal(t, uint32(31), recs[31].CoreID)
	assert.Equal(t, uint32(229), recs[0].Cycles)
}

func TestForcePreemptionStretchesRuns(t *testing.T) {
	cfg := fastConfig()
	cfg.Preemptions = 10
	cfg.PreemptCost = 2 * time.Millisecond
	dev := sim.New("sim0", cfg)
	ctx := context.Background()

	require.Error(t, dev.SetForcePreemption(ctx, "other", true))
	require.NoError(t, dev.SetForcePreemption(ctx, "sim0", true))
	assert.True(t, dev.ForcePreemption())

	sess := bind(t, dev)
	set := xfer.NewSet(sess)
	defer set.Close()
	ifm, _ := set.AllocateAt(accel.RoleInput, 4, 3)
	ofm, _ := set.AllocateAt(accel.RoleOutput, 4, 4)
	w1, _ := set.AllocateAt(accel.RoleInput, 4, 5)
	w2, _ := set.AllocateAt(accel.RoleInput, 4, 6)

	out, err := sess.Execute(accel.PreemptArgs(accel.OpcodePreemptApp, ifm, ofm, w1, w2), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Elapsed, 20*time.Millisecond)
}

func TestClosedKernelRejectsRuns(t *testing.T) {
	dev := sim.New("sim0", fastConfig())
	sess, err := accel.Bind(context.Background(), dev, accel.Program{Path: "x.xclbin"}, accel.MatchPolicy{})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	_, err = sess.Submit(accel.Args{accel.Scalar(accel.OpcodeHostApp)})
	var ee *accel.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "submit", ee.Op)
}
