package queue

import "errors"

var (
	errUnknownJob       = errors.New("queue: unknown job_id")
	errUnknownSession   = errors.New("queue: no active jobs for session_id")
	errHeartbeatTimeout = errors.New("queue: heartbeat timeout exceeded")
	errProgressTimeout  = errors.New("queue: progress timeout exceeded")
)
