package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/nlock"
)

func TestInMemory_SendRoutesToHandler(t *testing.T) {
	tr := NewInMemory()
	tr.RegisterHandler("n1", func(ctx context.Context, req *LockRequest) (*LockResponse, error) {
		return &LockResponse{MiniID: req.MiniID}, nil
	})

	req := &LockRequest{MiniID: nlock.NewUUID()}
	resp, err := tr.Send(context.Background(), "n1", req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.MiniID != req.MiniID {
		t.Fatal("expected response MiniID to echo the request")
	}
}

func TestInMemory_SendToUnknownNodeFails(t *testing.T) {
	tr := NewInMemory()
	_, err := tr.Send(context.Background(), "ghost", &LockRequest{})
	var tc *ErrTopologyChanged
	if !errors.As(err, &tc) {
		t.Fatalf("expected *ErrTopologyChanged, got %v", err)
	}
}

func TestInMemory_MarkDepartedFailsSubsequentSends(t *testing.T) {
	tr := NewInMemory()
	tr.RegisterHandler("n1", func(ctx context.Context, req *LockRequest) (*LockResponse, error) {
		return &LockResponse{}, nil
	})
	tr.MarkDeparted("n1")

	_, err := tr.Send(context.Background(), "n1", &LockRequest{})
	var tc *ErrTopologyChanged
	if !errors.As(err, &tc) {
		t.Fatalf("expected *ErrTopologyChanged after MarkDeparted, got %v", err)
	}
}
