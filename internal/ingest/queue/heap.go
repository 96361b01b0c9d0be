package queue

import (
	"container/heap"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// item wraps a Job with the monotonic sequence number that breaks
// priority ties FIFO (§4.7: "lower priority first; ties by FIFO").
type item struct {
	job   types.Job
	seq   int64
	index int
}

// priorityQueue is a container/heap.Interface min-heap ordered by
// (priority, seq) — the same stdlib heap idiom the teacher reaches for
// wherever it needs ordered in-memory work (this module's own
// contextengine LRU cache uses a hand-rolled map instead since it only
// needs "least recently used", but a real priority ordering is exactly
// what container/heap is for).
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].job.Priority != pq[j].job.Priority {
		return pq[i].job.Priority < pq[j].job.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	it := x.(*item)
	it.index = n
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// jobHeap is a small wrapper giving the rest of the package a plain
// push/pop/remove API instead of reaching for container/heap directly.
type jobHeap struct {
	pq      priorityQueue
	nextSeq int64
}

func newJobHeap() *jobHeap {
	return &jobHeap{pq: priorityQueue{}}
}

func (h *jobHeap) push(job types.Job) {
	h.nextSeq++
	heap.Push(&h.pq, &item{job: job, seq: h.nextSeq})
}

func (h *jobHeap) pop() (types.Job, bool) {
	if h.pq.Len() == 0 {
		return types.Job{}, false
	}
	it := heap.Pop(&h.pq).(*item)
	return it.job, true
}

func (h *jobHeap) len() int { return h.pq.Len() }

// removeByJobID removes the first queued job matching jobID, used by
// CancelJob to drop a job still waiting in the queue (§4.7 cancellation).
func (h *jobHeap) removeByJobID(jobID string) (types.Job, bool) {
	for i, it := range h.pq {
		if it.job.JobID == jobID {
			heap.Remove(&h.pq, i)
			return it.job, true
		}
	}
	return types.Job{}, false
}

// removeBySessionID removes every queued job for sessionID, used by
// CancelSession.
func (h *jobHeap) removeBySessionID(sessionID string) []types.Job {
	var removed []types.Job
	for {
		found := false
		for i, it := range h.pq {
			if it.job.SessionID == sessionID {
				heap.Remove(&h.pq, i)
				removed = append(removed, it.job)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return removed
}

func (h *jobHeap) snapshot() []types.Job {
	out := make([]types.Job, len(h.pq))
	for i, it := range h.pq {
		out[i] = it.job
	}
	return out
}
