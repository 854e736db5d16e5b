package worker

import (
	"encoding/json"
	"time"

	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
)

// Illustrative processors for tests and demos. Host processes register
// their own business logic via Registry.Register for real deployments —
// these exist only to exercise the worker machinery end to end.

// HandleUSBAttach logs a device connecting and reports completion.
func HandleUSBAttach(jc *JobContext) Result {
	var p job.USBAttachPayload
	if err := job.DecodePayload(jc.Job.Payload, &p); err != nil {
		return Failed(err)
	}
	jc.Log("usb device attached", logger.LevelInfo)
	return Ok(nil)
}

// HandleUSBDetach logs a device disconnecting.
func HandleUSBDetach(jc *JobContext) Result {
	var p job.USBDetachPayload
	if err := job.DecodePayload(jc.Job.Payload, &p); err != nil {
		return Failed(err)
	}
	jc.Log("usb device detached", logger.LevelInfo)
	return Ok(nil)
}

// HandlePluginLoad simulates loading a plugin by ID.
func HandlePluginLoad(jc *JobContext) Result {
	var p job.PluginLoadPayload
	if err := job.DecodePayload(jc.Job.Payload, &p); err != nil {
		return Failed(err)
	}
	jc.Progress(50, nil)
	data, _ := json.Marshal(map[string]string{"plugin_id": p.PluginID, "status": "loaded"})
	return Ok(data)
}

// HandleLLMCompletion simulates a completion call against a model.
func HandleLLMCompletion(jc *JobContext) Result {
	var p job.LLMCompletionPayload
	if err := job.DecodePayload(jc.Job.Payload, &p); err != nil {
		return Failed(err)
	}
	select {
	case <-jc.Context.Done():
		return Failed(jc.Context.Err())
	case <-time.After(100 * time.Millisecond):
	}
	data, _ := json.Marshal(map[string]string{"model": p.Model, "completion": "(simulated)"})
	return Ok(data)
}

// HandleSystemHealth reports a synthetic health check result.
func HandleSystemHealth(jc *JobContext) Result {
	data, _ := json.Marshal(map[string]string{"status": "ok"})
	return Ok(data)
}

// HandleMemoryVectorize simulates indexing a document into a vector store.
func HandleMemoryVectorize(jc *JobContext) Result {
	var p job.MemoryVectorizePayload
	if err := job.DecodePayload(jc.Job.Payload, &p); err != nil {
		return Failed(err)
	}
	jc.Log("vectorizing document", logger.LevelDebug)
	data, _ := json.Marshal(map[string]string{"document_id": p.DocumentID, "status": "vectorized"})
	return Ok(data)
}
