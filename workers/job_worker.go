package workers

import (
	"log"
	"sync"

	"github.com/huyng1801/diem-danh/services"
)

// TaskType constants
const (
	TaskTrainGallery  = "train_gallery"
	TaskAbsenteeSweep = "absentee_sweep"
)

// Job is one queued background task. Both task types are idempotent, so a job
// that is retried or queued twice does no harm.
type Job struct {
	TaskType string
}

// JobProcessor runs gallery training and the absentee sweep off the request
// path. Jobs are queued by handlers or an external trigger; the processor
// never schedules anything on its own.
type JobProcessor struct {
	JobQueue    chan Job
	Recognition *services.RecognitionService
	Attendance  *services.AttendanceService
	Wg          sync.WaitGroup
	StopChan    chan struct{}
	Pending     map[string]bool
	Mutex       sync.Mutex
}

func NewJobProcessor(recognition *services.RecognitionService, attendance *services.AttendanceService, queueSize, numWorkers int) *JobProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &JobProcessor{
		JobQueue:    make(chan Job, queueSize),
		Recognition: recognition,
		Attendance:  attendance,
		StopChan:    make(chan struct{}),
		Pending:     make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d job worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (jp *JobProcessor) worker(id int) {
	defer jp.Wg.Done()

	log.Printf("Job worker %d started", id)
	for {
		select {
		case job, ok := <-jp.JobQueue:
			if !ok {
				log.Printf("Job worker %d stopping: Job queue closed", id)
				return
			}

			log.Printf("Worker %d: Received job '%s'", id, job.TaskType)

			switch job.TaskType {
			case TaskTrainGallery:
				jp.processTrainTask(id)
			case TaskAbsenteeSweep:
				jp.processSweepTask(id)
			default:
				log.Printf("Worker %d: ERROR unknown task type '%s'", id, job.TaskType)
			}

			jp.Mutex.Lock()
			delete(jp.Pending, job.TaskType)
			jp.Mutex.Unlock()

		case <-jp.StopChan:
			log.Printf("Job worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (jp *JobProcessor) processTrainTask(id int) {
	result, err := jp.Recognition.BuildGallery()
	if err != nil {
		log.Printf("Worker %d: ERROR building gallery: %v", id, err)
		return
	}
	log.Printf("Worker %d: gallery build finished - success=%v trained=%d failed=%d embeddings=%d",
		id, result.Success, result.TrainedCount, result.FailedCount, result.TotalEmbeddings)
}

func (jp *JobProcessor) processSweepTask(id int) {
	result, err := jp.Attendance.SweepStaleSessions()
	if err != nil {
		log.Printf("Worker %d: ERROR running absentee sweep: %v", id, err)
		return
	}
	log.Printf("Worker %d: absentee sweep finished - sessions=%d marked=%d errors=%d",
		id, result.SessionsProcessed, result.StudentsMarked, result.Errors)
}

// QueueJob queues a task unless one of the same type is already pending.
func (jp *JobProcessor) QueueJob(job Job) bool {
	jp.Mutex.Lock()
	if jp.Pending[job.TaskType] {
		jp.Mutex.Unlock()
		return false
	}
	jp.Pending[job.TaskType] = true
	jp.Mutex.Unlock()

	select {
	case jp.JobQueue <- job:
		log.Printf("Queued task '%s'", job.TaskType)
		return true
	default:
		log.Printf("WARNING: Job queue full. Failed to queue task '%s'", job.TaskType)
		jp.Mutex.Lock()
		delete(jp.Pending, job.TaskType)
		jp.Mutex.Unlock()
		return false
	}
}

// QueueTraining requests a gallery rebuild.
func (jp *JobProcessor) QueueTraining() bool {
	return jp.QueueJob(Job{TaskType: TaskTrainGallery})
}

// QueueSweep requests an absentee sweep run.
func (jp *JobProcessor) QueueSweep() bool {
	return jp.QueueJob(Job{TaskType: TaskAbsenteeSweep})
}

func (jp *JobProcessor) Stop() {
	log.Println("Stopping job workers...")
	close(jp.StopChan)
	jp.Wg.Wait()
	log.Println("All job workers stopped")
}
