package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uatomic "go.uber.org/atomic"
	"pgregory.net/rapid"

	"maadoctor.app/cli/internal/core/detector"
)

func handle(id string, fn detector.DetectorFunc) *detector.Handle {
	return detector.NewHandle(detector.Descriptor{ID: id}, fn)
}

func reporting(code string) detector.DetectorFunc {
	return func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
		return &detector.ErrorReport{Code: code, Title: "title " + code, HasSolution: true}, nil
	}
}

func silent() detector.DetectorFunc {
	return func(context.Context, detector.LogDir) (*detector.ErrorReport, error) { return nil, nil }
}

var emptyLogs = detector.NewLogDir("/logs", fstestLogs())

func TestExecutionEngine_OutcomeKinds(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	handles := []*detector.Handle{
		handle("match", reporting("E001")),
		handle("clean", silent()),
		handle("error", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			return nil, errors.New("cannot parse log")
		}),
		handle("panic", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			var m map[string]int
			m["boom"]++
			return nil, nil
		}),
		handle("hang", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			<-block
			return nil, nil
		}),
		handle("bad-report", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			return &detector.ErrorReport{Code: "oops", Title: "x"}, nil
		}),
	}

	engine := NewExecutionEngine(3, 100*time.Millisecond, nil)
	outcomes := engine.RunAll(context.Background(), handles, emptyLogs)
	require.Len(t, outcomes, len(handles))

	want := []detector.Status{
		detector.StatusMatched,
		detector.StatusNoMatch,
		detector.StatusFailed,
		detector.StatusFailed,
		detector.StatusTimedOut,
		detector.StatusFailed,
	}
	for i, o := range outcomes {
		assert.Equal(t, handles[i].Descriptor.ID, o.DetectorID, "order is preserved")
		assert.Equal(t, want[i], o.Status, o.DetectorID)
	}
	assert.Equal(t, "E001", outcomes[0].Report.Code)
	assert.Equal(t, "cannot parse log", outcomes[2].Reason)
	assert.Contains(t, outcomes[3].Reason, "panic")
	assert.Equal(t, "exceeded 100ms", outcomes[4].Reason)
	assert.Contains(t, outcomes[5].Reason, "invalid report")
}

func TestExecutionEngine_HangingDetectorDoesNotDelayOthers(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	handles := []*detector.Handle{
		handle("hang", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			<-block
			return nil, nil
		}),
	}
	for i := 1; i <= 8; i++ {
		handles = append(handles, handle(fmt.Sprintf("d%d", i), reporting(fmt.Sprintf("E%03d", i))))
	}

	engine := NewExecutionEngine(1, 200*time.Millisecond, nil)
	start := time.Now()
	outcomes := engine.RunAll(context.Background(), handles, emptyLogs)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, detector.StatusTimedOut, outcomes[0].Status)
	for _, o := range outcomes[1:] {
		assert.Equal(t, detector.StatusMatched, o.Status, o.DetectorID)
	}
}

func TestExecutionEngine_TimedOutDetectorIsReleased(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	d := &closingDetector{Detector: detector.DetectorFunc(func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
		<-block
		return nil, nil
	})}
	engine := NewExecutionEngine(1, 50*time.Millisecond, nil)
	outcomes := engine.RunAll(context.Background(), []*detector.Handle{detector.NewHandle(detector.Descriptor{ID: "plugin"}, d)}, emptyLogs)

	assert.Equal(t, detector.StatusTimedOut, outcomes[0].Status)
	assert.Eventually(t, d.isClosed, time.Second, 10*time.Millisecond)
}

func TestExecutionEngine_RespectsWorkerLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	track := func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	}

	var handles []*detector.Handle
	for i := 0; i < 12; i++ {
		handles = append(handles, handle(fmt.Sprint(i), track))
	}
	NewExecutionEngine(3, time.Second, nil).RunAll(context.Background(), handles, emptyLogs)
	assert.LessOrEqual(t, peak, 3)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestExecutionEngine_Cancel(t *testing.T) {
	engine := NewExecutionEngine(1, time.Second, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var ran uatomic.Int32

	handles := []*detector.Handle{
		handle("first", func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			ran.Inc()
			close(started)
			<-release
			return &detector.ErrorReport{Code: "E001", Title: "still reported"}, nil
		}),
	}
	for i := 0; i < 4; i++ {
		handles = append(handles, handle(fmt.Sprintf("later-%d", i), func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
			ran.Inc()
			return nil, nil
		}))
	}

	done := make(chan []detector.Outcome)
	go func() { done <- engine.RunAll(context.Background(), handles, emptyLogs) }()

	<-started
	engine.Cancel()
	close(release)
	outcomes := <-done

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, detector.StatusMatched, outcomes[0].Status, "running detector is not interrupted")
	for _, o := range outcomes[1:] {
		assert.Equal(t, detector.StatusFailed, o.Status)
		assert.Equal(t, "cancelled", o.Reason)
	}

	// the flag belongs to the finished batch
	outcomes = engine.RunAll(context.Background(), handles[1:2], emptyLogs)
	assert.Equal(t, detector.StatusNoMatch, outcomes[0].Status)
}

func TestExecutionEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := NewExecutionEngine(2, time.Second, nil).RunAll(ctx, []*detector.Handle{
		handle("a", reporting("E001")),
		handle("b", reporting("E002")),
	}, emptyLogs)
	for _, o := range outcomes {
		assert.Equal(t, detector.StatusFailed, o.Status)
		assert.Equal(t, "cancelled", o.Reason)
	}
}

func TestExecutionEngine_EveryHandleGetsOneOutcome(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		workers := rapid.IntRange(1, 6).Draw(t, "workers")

		var handles []*detector.Handle
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("d%02d", i)
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				handles = append(handles, handle(id, reporting(fmt.Sprintf("E%d", i%4))))
			case 1:
				handles = append(handles, handle(id, silent()))
			default:
				handles = append(handles, handle(id, func(context.Context, detector.LogDir) (*detector.ErrorReport, error) {
					return nil, errors.New("broken")
				}))
			}
		}

		outcomes := NewExecutionEngine(workers, time.Second, nil).RunAll(context.Background(), handles, emptyLogs)
		if len(outcomes) != n {
			t.Fatalf("got %d outcomes for %d handles", len(outcomes), n)
		}
		for i, o := range outcomes {
			if o.DetectorID != handles[i].Descriptor.ID {
				t.Fatalf("outcome %d belongs to %s", i, o.DetectorID)
			}
		}
	})
}
