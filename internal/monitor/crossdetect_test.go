package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter29ljf/bybitoption/internal/core"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTask(target string) *core.MonitorTask {
	return &core.MonitorTask{
		TaskID:      "t1",
		TargetPrice: dec(target),
	}
}

func TestObserve_FirstTickOnlySeeds(t *testing.T) {
	task := newTask("100")

	r := observe(task, dec("95"))
	assert.False(t, r.Crossed)
	require.NotNil(t, task.CurrentPrice)
	assert.True(t, task.CurrentPrice.Equal(dec("95")))
	assert.Nil(t, task.PreviousPrice)
}

func TestObserve_FiresOnSecondTickAfterSeedBelowTarget(t *testing.T) {
	// A task whose first observation already puts it on one side of the
	// target only needs one more tick to cross: a freshly monitored TP/SL
	// level (or a spot watch) fed exactly two prices, e.g. 78 then 81
	// against a target of 80, must fire on that second tick rather than
	// waiting for a third.
	task := newTask("80")

	r := observe(task, dec("78"))
	assert.False(t, r.Crossed)

	r = observe(task, dec("81"))
	require.True(t, r.Crossed)
	assert.Equal(t, core.TriggerUpCross, r.Direction)
}

func TestObserve_UpCrossOnThirdTick(t *testing.T) {
	// 95, 99, 100 against a target of 100 fires on the third tick,
	// reporting previous_price=99.
	task := newTask("100")
	observe(task, dec("95"))
	observe(task, dec("99"))

	r := observe(task, dec("100"))
	require.True(t, r.Crossed)
	assert.Equal(t, core.TriggerUpCross, r.Direction)
}

func TestObserve_DownCross(t *testing.T) {
	task := newTask("100")
	observe(task, dec("105"))
	observe(task, dec("101"))

	r := observe(task, dec("100"))
	require.True(t, r.Crossed)
	assert.Equal(t, core.TriggerDownCross, r.Direction)
}

func TestObserve_NoCrossWhenPriceStaysOnOneSide(t *testing.T) {
	task := newTask("100")
	observe(task, dec("80"))
	observe(task, dec("85"))

	r := observe(task, dec("90"))
	assert.False(t, r.Crossed)
}

func TestObserve_DoesNotLatchAfterCross(t *testing.T) {
	task := newTask("100")
	observe(task, dec("95"))
	observe(task, dec("99"))

	r := observe(task, dec("100"))
	require.True(t, r.Crossed)

	// The service removes a triggered task from the active set as soon as
	// it crosses, so a second observe() call never happens in practice.
	// observe itself leaves history untouched on a cross (there is no
	// "already triggered" flag at this layer), so calling it again would
	// just reproduce the same comparison rather than corrupt state.
	r2 := observe(task, dec("101"))
	assert.True(t, r2.Crossed)
}

func TestCompareCross_EqualityCountsAsCross(t *testing.T) {
	r := compareCross(dec("99"), dec("100"), dec("100"))
	assert.True(t, r.Crossed)
	assert.Equal(t, core.TriggerUpCross, r.Direction)
}
