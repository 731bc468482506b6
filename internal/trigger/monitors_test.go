package trigger_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popup-engine/internal/campaign"
	"popup-engine/internal/clock"
	"popup-engine/internal/page"
	"popup-engine/internal/trigger"
)

type counter struct{ n atomic.Int32 }

func (c *counter) fire() { c.n.Add(1) }
func (c *counter) get() int32 { return c.n.Load() }

func TestImmediate_FiresOnArm(t *testing.T) {
	var c counter
	disarm := trigger.Immediate{}.Arm(c.fire)
	assert.EqualValues(t, 1, c.get())
	disarm()
	disarm()
	assert.EqualValues(t, 1, c.get())
}

func TestDelay(t *testing.T) {
	t.Run("fires once after duration", func(t *testing.T) {
		clk := clock.NewManual(time.Now())
		var c counter
		trigger.Delay{Clock: clk, After: 5 * time.Second}.Arm(c.fire)

		clk.Advance(4 * time.Second)
		assert.EqualValues(t, 0, c.get())
		clk.Advance(time.Second)
		assert.EqualValues(t, 1, c.get())
		clk.Advance(time.Hour)
		assert.EqualValues(t, 1, c.get())
	})

	t.Run("disarm cancels timer", func(t *testing.T) {
		clk := clock.NewManual(time.Now())
		var c counter
		disarm := trigger.Delay{Clock: clk, After: time.Second}.Arm(c.fire)
		require.Equal(t, 1, clk.Pending())

		disarm()
		assert.Equal(t, 0, clk.Pending())
		clk.Advance(time.Minute)
		assert.EqualValues(t, 0, c.get())
	})

	t.Run("no clock never fires", func(t *testing.T) {
		var c counter
		disarm := trigger.Delay{After: 0}.Arm(c.fire)
		assert.NotPanics(t, disarm)
		assert.EqualValues(t, 0, c.get())
	})
}

// staleTimer hands the callback back to the test instead of scheduling it,
// so a fire that was already in flight can be delivered after disarm.
type staleTimer struct {
	now time.Time
	f   func()
}

func (s *staleTimer) Now() time.Time { return s.now }
func (s *staleTimer) AfterFunc(_ time.Duration, f func()) clock.Timer {
	s.f = f
	return stopNoop{}
}

type stopNoop struct{}

func (stopNoop) Stop() bool { return false }

func TestDelay_ExpiredTimerAfterDisarmIsNoop(t *testing.T) {
	st := &staleTimer{now: time.Now()}
	var c counter
	disarm := trigger.Delay{Clock: st, After: time.Second}.Arm(c.fire)
	disarm()
	st.f()
	assert.EqualValues(t, 0, c.get())
}

func TestScrollDepth(t *testing.T) {
	vp := func(offset float64) trigger.Viewport {
		return trigger.Viewport{ScrollOffset: offset, DocumentHeight: 3000, ViewportHeight: 1000}
	}

	t.Run("fires at threshold and removes listener", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		trigger.ScrollDepth{Source: bus, Percent: 50}.Arm(c.fire)
		require.Equal(t, 1, bus.Listeners())

		bus.Scroll(vp(999))
		assert.EqualValues(t, 0, c.get())
		bus.Scroll(vp(1000))
		assert.EqualValues(t, 1, c.get())
		assert.Equal(t, 0, bus.Listeners())
		bus.Scroll(vp(2000))
		assert.EqualValues(t, 1, c.get())
	})

	t.Run("already scrolled past on arm", func(t *testing.T) {
		bus := page.NewBus(true)
		bus.Scroll(vp(1800))
		var c counter
		trigger.ScrollDepth{Source: bus, Percent: 75}.Arm(c.fire)
		assert.EqualValues(t, 1, c.get())
	})

	t.Run("short page does not fire", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		trigger.ScrollDepth{Source: bus, Percent: 10}.Arm(c.fire)
		bus.Scroll(trigger.Viewport{DocumentHeight: 800, ViewportHeight: 800})
		assert.EqualValues(t, 0, c.get())
	})

	t.Run("short page fires at zero percent", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		trigger.ScrollDepth{Source: bus, Percent: 0}.Arm(c.fire)
		bus.Scroll(trigger.Viewport{DocumentHeight: 800, ViewportHeight: 800})
		assert.EqualValues(t, 1, c.get())
	})

	t.Run("disarm removes listener", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		disarm := trigger.ScrollDepth{Source: bus, Percent: 50}.Arm(c.fire)
		disarm()
		assert.Equal(t, 0, bus.Listeners())
		bus.Scroll(vp(2000))
		assert.EqualValues(t, 0, c.get())
	})
}

func TestPointerExit(t *testing.T) {
	bus := page.NewBus(true)
	var c counter
	trigger.PointerExit{Source: bus}.Arm(c.fire)

	bus.PointerLeave(trigger.PointerEvent{Y: 300, OnRoot: true})
	bus.PointerLeave(trigger.PointerEvent{Y: -5, OnRoot: false})
	assert.EqualValues(t, 0, c.get())

	bus.PointerLeave(trigger.PointerEvent{Y: 0, OnRoot: true})
	assert.EqualValues(t, 1, c.get())
	assert.Equal(t, 0, bus.Listeners())
}

func TestBackNavigationExit(t *testing.T) {
	t.Run("pushes marker and fires on back", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		trigger.BackNavigationExit{History: bus}.Arm(c.fire)

		cmds := bus.Drain()
		require.Len(t, cmds, 1)
		assert.Equal(t, page.CommandPushHistory, cmds[0].Type)
		marker := cmds[0].State[trigger.ExitMarkerKey]
		require.NotEmpty(t, marker)

		bus.PopState(trigger.HistoryState{trigger.ExitMarkerKey: marker})
		assert.EqualValues(t, 0, c.get())

		bus.PopState(nil)
		assert.EqualValues(t, 1, c.get())
	})

	t.Run("no history api never fires", func(t *testing.T) {
		bus := page.NewBus(false)
		var c counter
		disarm := trigger.BackNavigationExit{History: bus}.Arm(c.fire)
		assert.Empty(t, bus.Drain())
		bus.PopState(nil)
		assert.EqualValues(t, 0, c.get())
		assert.NotPanics(t, disarm)
	})

	t.Run("disarm removes pop listener", func(t *testing.T) {
		bus := page.NewBus(true)
		var c counter
		disarm := trigger.BackNavigationExit{History: bus}.Arm(c.fire)
		disarm()
		bus.PopState(nil)
		assert.EqualValues(t, 0, c.get())
		assert.Equal(t, 0, bus.Listeners())
	})
}

func TestMonitor_DisarmRacingFire(t *testing.T) {
	for i := 0; i < 200; i++ {
		bus := page.NewBus(true)
		var c counter
		disarm := trigger.PointerExit{Source: bus}.Arm(c.fire)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.PointerLeave(trigger.PointerEvent{Y: 0, OnRoot: true})
		}()
		go func() {
			defer wg.Done()
			disarm()
		}()
		wg.Wait()

		assert.LessOrEqual(t, c.get(), int32(1))
		bus.PointerLeave(trigger.PointerEvent{Y: 0, OnRoot: true})
		assert.LessOrEqual(t, c.get(), int32(1))
	}
}

func TestFactory(t *testing.T) {
	bus := page.NewBus(true)
	clk := clock.NewManual(time.Now())
	pg := trigger.Page{Clock: clk, Scroll: bus, Pointer: bus, History: bus}

	desktop := pg
	desktop.ViewportWidth = 1280
	f := trigger.NewFactory(desktop, trigger.FactoryOptions{}, zerolog.Nop())
	assert.False(t, f.Compact())
	assert.IsType(t, trigger.Immediate{}, f.For(campaign.Immediate()))
	assert.Equal(t, trigger.Delay{Clock: clk, After: 1500 * time.Millisecond}, f.For(campaign.AfterDelay(1.5)))
	assert.Equal(t, trigger.ScrollDepth{Source: bus, Percent: 40}, f.For(campaign.OnScrollDepth(40)))
	assert.IsType(t, trigger.PointerExit{}, f.For(campaign.OnExitIntent()))
	assert.Equal(t, trigger.Never, f.For(campaign.TriggerRule{Kind: "hover"}))

	mobile := pg
	mobile.ViewportWidth = 390
	f = trigger.NewFactory(mobile, trigger.FactoryOptions{}, zerolog.Nop())
	assert.True(t, f.Compact())
	assert.IsType(t, trigger.BackNavigationExit{}, f.For(campaign.OnExitIntent()))

	f = trigger.NewFactory(mobile, trigger.FactoryOptions{DisableCompactExit: true}, zerolog.Nop())
	assert.Equal(t, trigger.Never, f.For(campaign.OnExitIntent()))
}
