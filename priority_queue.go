/*
 *  priority_queue.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

// A PriorityQueue implements heap.Interface and holds the jobs that are
// ready to dispatch
type PriorityQueue []*Job

// Len returns the number of jobs in the queue
func (pq PriorityQueue) Len() int { return len(pq) }

// Less defines the way jobs get ordered: highest rule priority first,
// plan order breaking ties so dispatch stays deterministic
func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].Rule.Priority != pq[j].Rule.Priority {
		return pq[i].Rule.Priority > pq[j].Rule.Priority
	}
	return pq[i].id < pq[j].id
}

// Swap exchanges values of two elements
func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].heapIndex = i
	pq[j].heapIndex = j
}

// Push adds a job to the queue
func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	job := x.(*Job)
	job.heapIndex = n
	*pq = append(*pq, job)
}

// Pop removes the job at the top of the heap
func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	job := old[n-1]
	job.heapIndex = -1 // for safety
	*pq = old[0 : n-1]
	return job
}
