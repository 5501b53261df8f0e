package chat

import "sync"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout 固定数量的 worker 把同一帧投递到多条连接
type Fanout struct {
	jobs chan fanoutJob
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				for _, c := range job.conns {
					// 慢客户端跳过
					c.enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

// Broadcast 队列满时丢弃并返回 false
func (f *Fanout) Broadcast(conns []*Client, payload []byte) bool {
	if len(conns) == 0 || len(payload) == 0 {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}
	select {
	case f.jobs <- fanoutJob{conns: conns, payload: payload}:
		return true
	default:
		return false
	}
}

// Close 停止 worker，等待队列中的任务投递完
func (f *Fanout) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.jobs)
		f.mu.Unlock()
		f.wg.Wait()
	})
}
