// ABOUTME: In-memory Client used by tests across packages
// ABOUTME: Records every call and hands out deterministic refs

package platform

import (
	"context"
	"fmt"
	"sync"
)

// RecordedCall captures one outbound platform operation.
type RecordedCall struct {
	Op     string // "anchor", "thread", "update", "notify"
	Thread ThreadRef
	Msg    MessageRef
	UserID string
	Text   string
}

// Recorder is a Client that performs no I/O. Tests inspect Calls after
// exercising the code under test. Err, when set, is returned by every
// operation.
type Recorder struct {
	mu    sync.Mutex
	Calls []RecordedCall
	Err   error

	nextID int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PostAnchor(ctx context.Context, text string) (ThreadRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	r.nextID++
	ref := ThreadRef(fmt.Sprintf("thread-%d", r.nextID))
	r.Calls = append(r.Calls, RecordedCall{Op: "anchor", Thread: ref, Text: text})
	return ref, nil
}

func (r *Recorder) PostThread(ctx context.Context, ref ThreadRef, text string) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	r.nextID++
	msg := MessageRef(fmt.Sprintf("msg-%d", r.nextID))
	r.Calls = append(r.Calls, RecordedCall{Op: "thread", Thread: ref, Msg: msg, Text: text})
	return msg, nil
}

func (r *Recorder) UpdateMessage(ctx context.Context, ref ThreadRef, msg MessageRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Calls = append(r.Calls, RecordedCall{Op: "update", Thread: ref, Msg: msg, Text: text})
	return nil
}

func (r *Recorder) NotifyUser(ctx context.Context, userID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Calls = append(r.Calls, RecordedCall{Op: "notify", UserID: userID, Text: text})
	return nil
}

// CallsOf returns the recorded calls matching op, in order.
func (r *Recorder) CallsOf(op string) []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedCall
	for _, c := range r.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
