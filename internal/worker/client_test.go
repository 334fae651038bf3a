package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sidekickd/sidekick/internal/tools"
)

// pipeTransport wires the client to an in-memory fake worker. Every Start
// produces a fresh pipe pair so respawn can be observed.
type pipeTransport struct {
	mu     sync.Mutex
	starts int32

	workerIn  *io.PipeReader // what the fake worker reads
	workerOut *io.PipeWriter // what the fake worker writes
}

func (t *pipeTransport) Start() (io.Writer, io.Reader, error) {
	atomic.AddInt32(&t.starts, 1)
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.mu.Lock()
	t.workerIn = inR
	t.workerOut = outW
	t.mu.Unlock()
	return inW, outR, nil
}

func (t *pipeTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workerOut != nil {
		t.workerOut.Close()
	}
	return nil
}

func (t *pipeTransport) startCount() int32 { return atomic.LoadInt32(&t.starts) }

func (t *pipeTransport) send(v map[string]any) {
	t.mu.Lock()
	out := t.workerOut
	t.mu.Unlock()
	data, _ := json.Marshal(v)
	out.Write(append(data, '\n'))
}

// serve answers invoke_tool requests with handler's result, in the order
// handler returns control.
func (t *pipeTransport) serve(handler func(req map[string]any) map[string]any) {
	t.mu.Lock()
	in := t.workerIn
	t.mu.Unlock()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var req map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if resp := handler(req); resp != nil {
			if _, ok := resp["_requestId"]; !ok {
				resp["_requestId"] = req["_requestId"]
			}
			t.send(resp)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestClientReadyAnnouncement(t *testing.T) {
	tr := &pipeTransport{}
	c := NewClient(tr, time.Second, time.Second)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	tr.send(map[string]any{"status": "ready", "modules": []string{"calendar", "email"}})
	waitFor(t, c.Ready)
	mods := c.Modules()
	if len(mods) != 2 || mods[0] != "calendar" {
		t.Fatalf("unexpected modules: %v", mods)
	}
}

func TestClientOutOfOrderResponses(t *testing.T) {
	tr := &pipeTransport{}
	c := NewClient(tr, time.Second, time.Second)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	// Hold the first request until the second arrives, then answer in
	// reverse order.
	var mu sync.Mutex
	var held map[string]any
	go tr.serve(func(req map[string]any) map[string]any {
		mu.Lock()
		defer mu.Unlock()
		if held == nil {
			held = req
			return nil
		}
		second := map[string]any{"status": "ok", "result": "second", "_requestId": req["_requestId"]}
		tr.send(second)
		return map[string]any{"status": "ok", "result": "first", "_requestId": held["_requestId"]}
	})

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			res, err := c.Invoke(context.Background(), name, nil)
			if err != nil {
				t.Errorf("Invoke %s: %v", name, err)
				return
			}
			results[i] = res
		}(i, name)
		// Keep request order deterministic.
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	if results[0] != "first" || results[1] != "second" {
		t.Fatalf("responses matched to wrong callers: %v", results)
	}
}

func TestClientTimeoutRejectsOnlyThatCall(t *testing.T) {
	tr := &pipeTransport{}
	c := NewClient(tr, 100*time.Millisecond, time.Second)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	go tr.serve(func(req map[string]any) map[string]any {
		if req["tool"] == "slow" {
			return nil // never answered
		}
		return map[string]any{"status": "ok", "result": "done"}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var slowErr error
	go func() {
		defer wg.Done()
		_, slowErr = c.Invoke(context.Background(), "slow", nil)
	}()

	res, err := c.Invoke(context.Background(), "fast", nil)
	if err != nil || res != "done" {
		t.Fatalf("fast call should succeed: %v %q", err, res)
	}

	wg.Wait()
	if !errors.Is(slowErr, ErrWorkerTimeout) {
		t.Fatalf("slow call should time out, got %v", slowErr)
	}
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("timed-out call must be removed from the pending map, %d left", n)
	}
}

func TestClientCrashRejectsAllAndRespawns(t *testing.T) {
	tr := &pipeTransport{}
	c := NewClient(tr, 5*time.Second, 20*time.Millisecond)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Invoke(context.Background(), "hang", nil)
			errs <- err
		}()
	}
	// Let both requests register as pending, then crash the worker.
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 2
	})
	tr.workerOut.Close()

	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, ErrWorkerCrash) {
			t.Fatalf("pending call should be rejected with crash error, got %v", err)
		}
	}

	waitFor(t, func() bool { return tr.startCount() >= 2 })
}

func TestClientListToolsMarksExternal(t *testing.T) {
	tr := &pipeTransport{}
	c := NewClient(tr, time.Second, time.Second)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	go tr.serve(func(req map[string]any) map[string]any {
		if req["cmd"] != "list_tools" {
			return map[string]any{"status": "error", "error": "unexpected cmd"}
		}
		return map[string]any{
			"status": "ok",
			"tools": []map[string]any{
				{"name": "calendar_add", "description": "Add a calendar event", "risk_level": "medium", "requires_confirm": true},
			},
		}
	})

	defs, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "calendar_add" {
		t.Fatalf("unexpected catalog: %+v", defs)
	}
	if defs[0].Source != tools.SourceExternal {
		t.Fatalf("worker definitions must be marked external, got %q", defs[0].Source)
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient(&pipeTransport{}, time.Second, time.Second)
	if _, err := c.Invoke(context.Background(), "x", nil); !errors.Is(err, ErrWorkerNotConnected) {
		t.Fatalf("expected not-connected error, got %v", err)
	}
}
