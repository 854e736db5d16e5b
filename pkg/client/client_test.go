package client

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/autoweave/jobqueue/internal/job"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c, err := NewClient("redis://"+mr.Addr(), "default")
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return c, mr
}

func TestClient_SubmitJobAndGetJob(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()
	ctx := context.Background()

	jobID, err := c.SubmitJob(ctx, job.KindUSBAttach, job.USBAttachPayload{
		DeviceSignature: "sig",
		VendorID:        "1234",
		ProductID:       "5678",
		DevicePath:      "/dev/bus/usb/001/002",
	}, job.Options{})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a non-empty job ID")
	}

	j, err := c.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if j.Status != job.StatusWaiting {
		t.Errorf("expected status waiting, got %s", j.Status)
	}
}

func TestClient_SubmitJobProto(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()
	ctx := context.Background()

	jobID, err := c.SubmitJobProto(ctx, job.KindUSBDetach, job.USBDetachPayload{DeviceSignature: "proto-sig"}, job.Options{})
	if err != nil {
		t.Fatalf("submit proto failed: %v", err)
	}

	j, err := c.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	var payload job.USBDetachPayload
	if err := job.DecodePayload(j.Payload, &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.DeviceSignature != "proto-sig" {
		t.Errorf("expected device_signature preserved, got %q", payload.DeviceSignature)
	}
}

func TestClient_SubmitBulk(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()
	ctx := context.Background()

	items := []BulkItem{
		{Kind: job.KindUSBAttach, Payload: job.USBAttachPayload{DeviceSignature: "a", VendorID: "1", ProductID: "2", DevicePath: "/dev/a"}},
		{Kind: job.KindUSBDetach, Payload: job.USBDetachPayload{DeviceSignature: "a"}},
	}
	ids, err := c.SubmitBulk(ctx, items)
	if err != nil {
		t.Fatalf("submit bulk failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 job IDs, got %d", len(ids))
	}
}

func TestClient_CancelJob(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()
	ctx := context.Background()

	jobID, err := c.SubmitJob(ctx, job.KindUSBDetach, job.USBDetachPayload{DeviceSignature: "x"}, job.Options{})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := c.CancelJob(ctx, jobID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	j, err := c.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if j.Status != job.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", j.Status)
	}
}

func TestClient_GetResult_MissingReturnsNil(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()

	r, err := c.GetResult(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if r != nil {
		t.Fatal("expected nil result for a job with no stored result")
	}
}

func TestClient_SubmitAndWait_TimesOut(t *testing.T) {
	c, mr := setupTestClient(t)
	defer mr.Close()
	defer c.Close()

	_, err := c.SubmitAndWait(context.Background(), job.KindUSBDetach, job.USBDetachPayload{DeviceSignature: "y"}, job.Options{}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected submit-and-wait to time out since nothing processes the queue")
	}
}
