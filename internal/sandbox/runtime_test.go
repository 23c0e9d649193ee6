package sandbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
)

// capture decodes everything a realm emits
type capture struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (c *capture) sink(_ Realm, msg []byte) {
	env, err := protocol.Decode(msg)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
}

func (c *capture) all() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.envs...)
}

func (c *capture) consoles() []protocol.Console {
	var out []protocol.Console
	for _, env := range c.all() {
		if con, ok := env.(protocol.Console); ok {
			out = append(out, con)
		}
	}
	return out
}

func (c *capture) finished(executionID protocol.CorrelationID) bool {
	for _, env := range c.all() {
		if f, ok := env.(protocol.ExecutionFinished); ok && f.ExecutionID == executionID {
			return true
		}
	}
	return false
}

func (c *capture) first(typ protocol.Type) (protocol.Envelope, bool) {
	for _, env := range c.all() {
		if env.Type() == typ {
			return env, true
		}
	}
	return nil, false
}

func startRealm(t *testing.T) (*Runtime, *capture) {
	t.Helper()
	rt, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	c := &capture{}
	require.NoError(t, rt.Start(c.sink))
	t.Cleanup(func() { rt.Close() })
	return rt, c
}

func post(t *testing.T, rt *Runtime, env protocol.Envelope) {
	t.Helper()
	msg, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, rt.Post(msg))
}

func run(t *testing.T, rt *Runtime, c *capture, execID protocol.CorrelationID, code string) {
	t.Helper()
	post(t, rt, protocol.Execute{Code: code, ExecutionID: execID})
	require.Eventually(t, func() bool { return c.finished(execID) }, 2*time.Second, 5*time.Millisecond)
}

func TestConsoleCapture(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", `
		console.log(1 + 1);
		console.info('info', {a: 1});
		console.warn('careful');
		console.error(new Error('bad'));
		console.dir({x: [1, 2]});
		console.table([{a: 1}]);
	`)

	consoles := c.consoles()
	require.Len(t, consoles, 6)

	assert.Equal(t, protocol.SubtypeLog, consoles[0].Subtype)
	assert.Equal(t, "2", consoles[0].Text)
	assert.Equal(t, `info {"a":1}`, consoles[1].Text)
	assert.Equal(t, protocol.SubtypeWarn, consoles[2].Subtype)
	assert.Equal(t, protocol.SubtypeError, consoles[3].Subtype)
	assert.Equal(t, "Error: bad", consoles[3].Text)

	assert.Equal(t, protocol.SubtypeDir, consoles[4].Subtype)
	var dir string
	require.NoError(t, json.Unmarshal(consoles[4].Data, &dir))
	assert.JSONEq(t, `{"x":[1,2]}`, dir)

	assert.Equal(t, protocol.SubtypeTable, consoles[5].Subtype)
	assert.JSONEq(t, `[{"a":1}]`, string(consoles[5].Data))

	for _, con := range consoles {
		assert.Equal(t, protocol.CorrelationID("run_1"), con.ExecutionID)
	}
}

func TestConsoleTime(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", `console.time('x'); console.timeEnd('x'); console.timeEnd('missing');`)

	consoles := c.consoles()
	require.Len(t, consoles, 2)
	assert.Equal(t, protocol.SubtypeTime, consoles[0].Subtype)
	assert.Equal(t, "x", consoles[0].Label)
	assert.GreaterOrEqual(t, consoles[0].Duration, 0.0)
	assert.Equal(t, protocol.SubtypeWarn, consoles[1].Subtype)
}

func TestGlobalsScrubbed(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", `console.log(typeof require, typeof process, typeof module, typeof exports)`)

	consoles := c.consoles()
	require.Len(t, consoles, 1)
	assert.Equal(t, "undefined undefined undefined undefined", consoles[0].Text)
}

func TestUncaughtError(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", "null.x")

	env, ok := c.first(protocol.TypeUncaughtError)
	require.True(t, ok)
	uncaught := env.(protocol.UncaughtError)
	assert.Equal(t, protocol.CorrelationID("run_1"), uncaught.ExecutionID)
	assert.NotEmpty(t, uncaught.Message)
	assert.NotEmpty(t, uncaught.Stack)
}

func TestThrownValueMessage(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", "throw new TypeError('nope')")

	env, ok := c.first(protocol.TypeUncaughtError)
	require.True(t, ok)
	assert.Equal(t, "nope", env.(protocol.UncaughtError).Message)
}

func TestTimerRequestAndFire(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", `
		const id = setTimeout((who) => console.log('late', who), 100, 'me');
		console.log('id', id);
	`)

	env, ok := c.first(protocol.TypeTimerCreate)
	require.True(t, ok)
	create := env.(protocol.TimerCreate)
	assert.Equal(t, protocol.TimerTimeout, create.TimerType)
	assert.Equal(t, 100.0, create.Delay)
	assert.Equal(t, protocol.CorrelationID("1"), create.TempID)

	post(t, rt, protocol.TimerFire{TempID: create.TempID})
	require.Eventually(t, func() bool { return len(c.consoles()) == 2 }, 2*time.Second, 5*time.Millisecond)

	late := c.consoles()[1]
	assert.Equal(t, "late me", late.Text)
	assert.Equal(t, protocol.CorrelationID("run_1"), late.ExecutionID)

	// A fired timeout is forgotten realm-side
	post(t, rt, protocol.TimerFire{TempID: create.TempID})
	run(t, rt, c, "run_2", "1")
	assert.Len(t, c.consoles(), 2)
}

func TestClearTimerEmitsClear(t *testing.T) {
	rt, c := startRealm(t)

	run(t, rt, c, "run_1", `const h = setInterval(() => {}, 10); clearInterval(h);`)

	env, ok := c.first(protocol.TypeTimerClear)
	require.True(t, ok)
	clear := env.(protocol.TimerClear)
	assert.Equal(t, protocol.TimerInterval, clear.TimerType)
	assert.Equal(t, protocol.CorrelationID("1"), clear.TimerID)
}

func TestPromptBlocksUntilResponse(t *testing.T) {
	rt, c := startRealm(t)

	post(t, rt, protocol.Execute{Code: `console.log('got', prompt('name?', 'x'))`, ExecutionID: "run_1"})

	require.Eventually(t, func() bool {
		_, ok := c.first(protocol.TypePrompt)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	env, _ := c.first(protocol.TypePrompt)
	req := env.(protocol.DialogRequest)
	require.NotNil(t, req.DefaultValue)
	assert.Equal(t, "x", *req.DefaultValue)
	assert.Equal(t, "name?", req.Text)
	assert.False(t, c.finished("run_1"))

	// Unrelated and stale messages wait behind the dialog
	post(t, rt, protocol.Execute{Code: `console.log('second')`, ExecutionID: "run_2"})
	post(t, rt, protocol.DialogResponse{Mode: protocol.ModePrompt, RequestID: "999"})

	value := "y"
	post(t, rt, protocol.DialogResponse{Mode: protocol.ModePrompt, RequestID: req.RequestID, Value: &value})

	require.Eventually(t, func() bool { return c.finished("run_2") }, 2*time.Second, 5*time.Millisecond)
	consoles := c.consoles()
	require.Len(t, consoles, 2)
	assert.Equal(t, "got y", consoles[0].Text)
	assert.Equal(t, "second", consoles[1].Text)
}

func TestConfirmFalseAndPromptNull(t *testing.T) {
	rt, c := startRealm(t)

	post(t, rt, protocol.Execute{Code: `console.log(confirm('ok?'), prompt('p'))`, ExecutionID: "run_1"})

	require.Eventually(t, func() bool {
		_, ok := c.first(protocol.TypeConfirm)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	env, _ := c.first(protocol.TypeConfirm)
	post(t, rt, protocol.DialogResponse{Mode: protocol.ModeConfirm, RequestID: env.(protocol.DialogRequest).RequestID})

	require.Eventually(t, func() bool {
		_, ok := c.first(protocol.TypePrompt)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	env, _ = c.first(protocol.TypePrompt)
	post(t, rt, protocol.DialogResponse{Mode: protocol.ModePrompt, RequestID: env.(protocol.DialogRequest).RequestID})

	require.Eventually(t, func() bool { return c.finished("run_1") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "false null", c.consoles()[0].Text)
}

func TestCloseInterruptsInfiniteLoop(t *testing.T) {
	rt, c := startRealm(t)

	post(t, rt, protocol.Execute{Code: "while(true){}", ExecutionID: "run_1"})
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, rt.Close())
	select {
	case <-rt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("realm goroutine did not exit")
	}

	assert.False(t, c.finished("run_1"))
	assert.ErrorIs(t, rt.Post([]byte(`{}`)), ErrRealmClosed)
}

func TestCloseWhileWaitingForDialog(t *testing.T) {
	rt, c := startRealm(t)

	post(t, rt, protocol.Execute{Code: "alert('hi'); console.log('after')", ExecutionID: "run_1"})
	require.Eventually(t, func() bool {
		_, ok := c.first(protocol.TypeAlert)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	rt.Close()
	select {
	case <-rt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("realm goroutine did not exit")
	}
	assert.Empty(t, c.consoles())
}

func TestStartTwice(t *testing.T) {
	rt, c := startRealm(t)
	assert.ErrorIs(t, rt.Start(c.sink), ErrAlreadyStarted)

	closed, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	closed.Close()
	assert.ErrorIs(t, closed.Start(c.sink), ErrRealmClosed)
	<-closed.Done()
}

func TestPoolAcquire(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2, nil)
	require.NoError(t, err)
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	third, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.NotEqual(t, second.ID(), third.ID())

	c := &capture{}
	require.NoError(t, first.Start(c.sink))
	defer first.Close()

	msg, _ := protocol.Encode(protocol.Execute{Code: "console.log('pooled')", ExecutionID: "run_1"})
	require.NoError(t, first.Post(msg))
	require.Eventually(t, func() bool { return c.finished("run_1") }, 2*time.Second, 5*time.Millisecond)

	stats := pool.Stats()
	assert.Equal(t, uint64(3), stats["acquired"])
	second.Close()
	third.Close()
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
